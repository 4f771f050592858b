package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/parsed-text/internal/extraction"
)

// Record is one input text
type Record struct {
	ID   string `csv:"id" parquet:"id" json:"id"`
	Text string `csv:"text" parquet:"text" json:"text"`
}

// Result is one line of the JSONL output
type Result struct {
	ID       string               `json:"id"`
	Segments []extraction.Segment `json:"segments,omitempty"`
	Matched  int                  `json:"matched"`
	Error    string               `json:"error,omitempty"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	MatchedSegments int64         `json:"matched_segments"`
	Inserted        int64         `json:"inserted"`
	Duplicates      int64         `json:"duplicates"`
	Duration        time.Duration `json:"duration"`
	DatabaseTime    time.Duration `json:"database_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int `yaml:"worker_count" mapstructure:"worker_count"`
	MaxTextBytes   int `yaml:"max_text_bytes" mapstructure:"max_text_bytes"`
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"`
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime       time.Time `json:"start_time"`
	RecordsRead     int64     `json:"records_read"`
	RecordsFailed   int64     `json:"records_failed"`
	MatchedSegments int64     `json:"matched_segments"`
	CurrentBatch    int64     `json:"current_batch"`
	ProcessingRate  float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension, defaulting to CSV
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
