// Package batch segments text corpora with a bounded worker pool.
package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/parsed-text/internal/extraction"
	"github.com/raaihank/parsed-text/internal/metrics"
	"github.com/raaihank/parsed-text/internal/parsedtext"
	"github.com/raaihank/parsed-text/internal/store"
)

// Inserter persists segmentations in batches
type Inserter interface {
	BatchInsert(ctx context.Context, records []*store.Record) (*store.BatchInsertResult, error)
}

// Pipeline segments every record of a dataset with a fixed option list
type Pipeline struct {
	descriptors []extraction.Descriptor
	optionBytes []byte
	store       Inserter
	out         io.Writer
	config      *Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	stats       *ProcessingStats
	mu          sync.RWMutex
}

// NewPipeline resolves the options and creates a pipeline writing JSONL
// results to out. store may be nil.
func NewPipeline(opts []parsedtext.Option, st Inserter, out io.Writer, config *Config, logger *zap.Logger) (*Pipeline, error) {
	if config.WorkerCount <= 0 || config.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch settings: %d workers, batch size %d", config.WorkerCount, config.BatchSize)
	}

	descriptors, err := parsedtext.Resolve(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve options: %w", err)
	}
	if _, err := extraction.Extract("", descriptors); err != nil {
		return nil, fmt.Errorf("failed to compile options: %w", err)
	}

	optionBytes, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize options: %w", err)
	}

	if out == nil {
		out = io.Discard
	}

	return &Pipeline{
		descriptors: descriptors,
		optionBytes: optionBytes,
		store:       st,
		out:         out,
		config:      config,
		logger:      logger,
		metrics:     metrics.New(),
		stats:       &ProcessingStats{StartTime: time.Now()},
	}, nil
}

// ProcessFile processes a dataset file (CSV, Parquet, or JSONL)
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*ProcessingResult, error) {
	format := DetectFileFormat(filePath)

	p.logger.Info("Starting batch pipeline",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", format, err)
	}
	defer file.Close()

	start := time.Now()
	result := &ProcessingResult{}
	p.resetStats()

	var readBatch func() ([]*Record, error)
	switch format {
	case FormatCSV:
		readBatch, err = p.csvReader(file)
	case FormatParquet:
		reader := parquet.NewReader(file)
		defer reader.Close()
		readBatch = p.parquetReader(reader)
	case FormatJSON:
		readBatch = p.jsonReader(json.NewDecoder(file))
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, err
	}

	if err := p.processBatches(ctx, readBatch, result); err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	result.Duration = time.Since(start)

	p.logger.Info("Batch pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("matched_segments", result.MatchedSegments),
		zap.Int64("inserted", result.Inserted),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("database_time", result.DatabaseTime))

	return result, nil
}

// csvReader reads records from a CSV file with a header row. The text
// column is required; without an id column rows are numbered.
func (p *Pipeline) csvReader(file io.Reader) (func() ([]*Record, error), error) {
	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idCol, textCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "id":
			idCol = i
		case "text":
			textCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}

	p.logger.Info("CSV header detected", zap.Strings("columns", header))

	row := 0
	return func() ([]*Record, error) {
		var batch []*Record
		for len(batch) < p.config.BatchSize {
			fields, err := reader.Read()
			if err == io.EOF {
				break
			}
			row++
			if err != nil {
				var parseErr *csv.ParseError
				if !errors.As(err, &parseErr) {
					return batch, fmt.Errorf("failed to read CSV record %d: %w", row, err)
				}
				p.logger.Warn("Skipping malformed CSV record", zap.Int("row", row), zap.Error(err))
				continue
			}

			record := &Record{Text: fields[textCol]}
			if idCol >= 0 {
				record.ID = fields[idCol]
			}
			batch = append(batch, p.withID(record, row))
		}
		return batch, nil
	}, nil
}

// parquetReader reads records from a Parquet file
func (p *Pipeline) parquetReader(reader *parquet.Reader) func() ([]*Record, error) {
	row := 0
	return func() ([]*Record, error) {
		var batch []*Record
		for len(batch) < p.config.BatchSize {
			var record Record
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			row++
			if err != nil {
				return batch, fmt.Errorf("failed to read Parquet record %d: %w", row, err)
			}
			batch = append(batch, p.withID(&record, row))
		}
		return batch, nil
	}
}

// jsonReader reads one JSON object per line
func (p *Pipeline) jsonReader(decoder *json.Decoder) func() ([]*Record, error) {
	row := 0
	return func() ([]*Record, error) {
		var batch []*Record
		for len(batch) < p.config.BatchSize {
			var record Record
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			row++
			if err != nil {
				// a syntax error leaves the decoder unusable
				return batch, fmt.Errorf("failed to read JSON record %d: %w", row, err)
			}
			batch = append(batch, p.withID(&record, row))
		}
		return batch, nil
	}
}

func (p *Pipeline) withID(record *Record, row int) *Record {
	if record.ID == "" {
		record.ID = strconv.Itoa(row)
	}
	return record
}

// processBatches drives readBatch until the input is exhausted
func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]*Record, error), result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, readErr := readBatch()
		if len(batch) > 0 {
			if err := p.processBatch(ctx, batch, result); err != nil {
				return err
			}
		}
		if readErr != nil {
			return fmt.Errorf("failed to read batch: %w", readErr)
		}
		if len(batch) == 0 {
			return nil
		}
	}
}

// processBatch segments a batch with the worker pool, writes the results
// in input order and persists them when a store is configured
func (p *Pipeline) processBatch(ctx context.Context, batch []*Record, result *ProcessingResult) error {
	results := make([]Result, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.WorkerCount)
	for i, record := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.segment(record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	encoder := json.NewEncoder(p.out)
	var records []*store.Record
	var matched, failed int64

	for i, res := range results {
		if err := encoder.Encode(res); err != nil {
			return fmt.Errorf("failed to write result %s: %w", res.ID, err)
		}

		if res.Error != "" {
			failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", res.ID, res.Error))
			continue
		}
		matched += int64(res.Matched)

		if p.store != nil && batch[i].Text != "" {
			record, err := store.NewRecord("batch", batch[i].Text, p.optionBytes, res.Segments)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
	}

	if len(records) > 0 {
		dbStart := time.Now()
		inserted, err := p.store.BatchInsert(ctx, records)
		result.DatabaseTime += time.Since(dbStart)
		if err != nil {
			p.logger.Error("Database batch insert failed", zap.Error(err))
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.Inserted += inserted.Inserted
			result.Duplicates += inserted.Duplicates
		}
	}

	previous := result.TotalRecords
	result.TotalRecords += int64(len(batch))
	result.ProcessedFailed += failed
	result.ProcessedOK += int64(len(batch)) - failed
	result.MatchedSegments += matched

	p.updateStats(int64(len(batch)), failed, matched)
	p.metrics.BatchRecordsTotal.WithLabelValues("ok").Add(float64(int64(len(batch)) - failed))
	p.metrics.BatchRecordsTotal.WithLabelValues("failed").Add(float64(failed))

	if every := int64(p.config.ProgressReport); every > 0 && previous/every != result.TotalRecords/every {
		p.reportProgress(result)
	}

	return nil
}

// segment runs the engine on one record
func (p *Pipeline) segment(record *Record) Result {
	res := Result{ID: record.ID}

	if p.config.MaxTextBytes > 0 && len(record.Text) > p.config.MaxTextBytes {
		res.Error = fmt.Sprintf("text is %d bytes, limit is %d", len(record.Text), p.config.MaxTextBytes)
		return res
	}

	segments, err := extraction.Extract(record.Text, p.descriptors)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Segments = segments
	res.Matched = len(extraction.Matches(segments))
	return res
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	stats := p.GetStats()
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", stats.ProcessingRate),
		zap.Duration("elapsed", time.Since(stats.StartTime)))
}

func (p *Pipeline) updateStats(read, failed, matched int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.RecordsRead += read
	p.stats.RecordsFailed += failed
	p.stats.MatchedSegments += matched
	p.stats.CurrentBatch++
	if elapsed := time.Since(p.stats.StartTime).Seconds(); elapsed > 0 {
		p.stats.ProcessingRate = float64(p.stats.RecordsRead) / elapsed
	}
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
