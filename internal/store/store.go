package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
	CREATE TABLE IF NOT EXISTS segmentations (
		id            BIGSERIAL PRIMARY KEY,
		source        TEXT NOT NULL DEFAULT '',
		content_hash  TEXT NOT NULL UNIQUE,
		text          TEXT NOT NULL,
		segments      JSONB NOT NULL,
		segment_count INTEGER NOT NULL,
		matched_count INTEGER NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const insertColumns = 6

// maxBatchRows keeps one statement under PostgreSQL's 65535 bind parameters
const maxBatchRows = 65535 / insertColumns

// Store persists segmentations in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the database and ensures the schema exists
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Segmentation store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Insert stores a record. It reports false when a record with the same
// content hash already exists.
func (s *Store) Insert(ctx context.Context, record *Record) (bool, error) {
	query := `
		INSERT INTO segmentations (source, content_hash, text, segments, segment_count, matched_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id, created_at`

	err := s.db.QueryRowxContext(ctx, query, insertArgs(record)...).
		Scan(&record.ID, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("Segmentation already stored", zap.String("content_hash", record.ContentHash))
		return false, nil
	}
	if err != nil {
		s.logger.Error("Failed to insert segmentation",
			zap.Error(err),
			zap.String("source", record.Source))
		return false, fmt.Errorf("failed to insert segmentation: %w", err)
	}

	return true, nil
}

// BatchInsert stores multiple records, skipping duplicates. Large inputs are
// split into several statements.
func (s *Store) BatchInsert(ctx context.Context, records []*Record) (*BatchInsertResult, error) {
	if len(records) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	for i, chunk := range chunkRecords(records, maxBatchRows) {
		query, args := buildBatchInsert(chunk)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			result.Failed = int64(len(records)) - int64(i*maxBatchRows)
			result.Errors = []error{err}
			result.Duration = time.Since(start)
			s.logger.Error("Batch insert failed", zap.Int("chunk", i), zap.Error(err))
			return result, fmt.Errorf("batch insert failed: %w", err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			s.logger.Warn("Could not get rows affected", zap.Error(err))
			inserted = int64(len(chunk))
		}
		result.Inserted += inserted
	}

	result.Duplicates = int64(len(records)) - result.Failed - result.Inserted
	result.Duration = time.Since(start)

	s.logger.Info("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates_skipped", result.Duplicates),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// GetByHash loads a stored segmentation
func (s *Store) GetByHash(ctx context.Context, contentHash string) (*Record, error) {
	var record Record
	query := `
		SELECT id, source, content_hash, text, segments, segment_count, matched_count, created_at
		FROM segmentations
		WHERE content_hash = $1`

	if err := s.db.GetContext(ctx, &record, query, contentHash); err != nil {
		return nil, fmt.Errorf("failed to load segmentation: %w", err)
	}
	return &record, nil
}

// GetStats returns database statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(segment_count), 0) AS segments,
			COALESCE(SUM(matched_count), 0) AS matched
		FROM segmentations`

	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get store stats: %w", err)
	}
	return &stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func insertArgs(r *Record) []any {
	return []any{r.Source, r.ContentHash, r.Text, r.Segments, r.SegmentCount, r.MatchedCount}
}

// chunkRecords splits records into slices of at most size rows
func chunkRecords(records []*Record, size int) [][]*Record {
	var chunks [][]*Record
	for len(records) > size {
		chunks = append(chunks, records[:size])
		records = records[size:]
	}
	if len(records) > 0 {
		chunks = append(chunks, records)
	}
	return chunks
}

// buildBatchInsert renders a multi-row insert with positional parameters
func buildBatchInsert(records []*Record) (string, []any) {
	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]any, 0, len(records)*insertColumns)

	for i, record := range records {
		placeholders := make([]string, insertColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*insertColumns+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")
		valueArgs = append(valueArgs, insertArgs(record)...)
	}

	query := fmt.Sprintf(`
		INSERT INTO segmentations (source, content_hash, text, segments, segment_count, matched_count)
		VALUES %s
		ON CONFLICT (content_hash) DO NOTHING`,
		strings.Join(valueStrings, ", "))

	return query, valueArgs
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	scheme := strings.Index(userPart, "://")
	colon := strings.LastIndex(userPart, ":")
	if colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
