package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/raaihank/parsed-text/internal/extraction"
)

// Record is one persisted segmentation
type Record struct {
	ID           int64          `db:"id" json:"id"`
	Source       string         `db:"source" json:"source"`
	ContentHash  string         `db:"content_hash" json:"content_hash"`
	Text         string         `db:"text" json:"text"`
	Segments     types.JSONText `db:"segments" json:"segments"`
	SegmentCount int            `db:"segment_count" json:"segment_count"`
	MatchedCount int            `db:"matched_count" json:"matched_count"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// NewRecord builds a record for text segmented with the serialized options.
// The content hash covers both, so the same text parsed with different
// options is stored separately.
func NewRecord(source, text string, options []byte, segments []extraction.Segment) (*Record, error) {
	data, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal segments: %w", err)
	}

	return &Record{
		Source:       source,
		ContentHash:  ContentHash(text, options),
		Text:         text,
		Segments:     types.JSONText(data),
		SegmentCount: len(segments),
		MatchedCount: len(extraction.Matches(segments)),
	}, nil
}

// ContentHash identifies a text and option set
func ContentHash(text string, options []byte) string {
	hasher := sha256.New()
	hasher.Write([]byte(text))
	hasher.Write([]byte{0})
	hasher.Write(options)
	return hex.EncodeToString(hasher.Sum(nil))
}

// Stats represents database statistics
type Stats struct {
	TotalRecords  int64 `db:"total" json:"total_records"`
	TotalSegments int64 `db:"segments" json:"total_segments"`
	TotalMatched  int64 `db:"matched" json:"total_matched"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted   int64         `json:"inserted"`
	Duplicates int64         `json:"duplicates"`
	Failed     int64         `json:"failed"`
	Duration   time.Duration `json:"duration"`
	Errors     []error       `json:"-"`
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}
