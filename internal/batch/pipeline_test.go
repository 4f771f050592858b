package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/parsed-text/internal/extraction"
	"github.com/raaihank/parsed-text/internal/parsedtext"
	"github.com/raaihank/parsed-text/internal/store"
)

var testOptions = []parsedtext.Option{
	{Type: "phone", ID: "phone"},
	{Type: "email", ID: "email"},
}

type fakeInserter struct {
	mu      sync.Mutex
	records []*store.Record
	calls   int
}

func (f *fakeInserter) BatchInsert(_ context.Context, records []*store.Record) (*store.BatchInsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.records = append(f.records, records...)
	return &store.BatchInsertResult{Inserted: int64(len(records))}, nil
}

func testConfig() *Config {
	return &Config{BatchSize: 2, WorkerCount: 2, MaxTextBytes: 64, ProgressReport: 1}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readResults(t *testing.T, out *bytes.Buffer) []Result {
	t.Helper()
	var results []Result
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var r Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		results = append(results, r)
	}
	require.NoError(t, scanner.Err())
	return results
}

func newTestPipeline(t *testing.T, st Inserter, out io.Writer, cfg *Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(testOptions, st, out, cfg, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestProcessFile_CSV(t *testing.T) {
	path := writeFile(t, "input.csv", "id,text\n"+
		"a,call 555-123-4567\n"+
		"b,write to me@example.com today\n"+
		"c,nothing here\n")

	var out bytes.Buffer
	p := newTestPipeline(t, nil, &out, testConfig())

	result, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(3), result.ProcessedOK)
	assert.Equal(t, int64(0), result.ProcessedFailed)
	assert.Equal(t, int64(2), result.MatchedSegments)

	results := readResults(t, &out)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].ID, results[1].ID, results[2].ID})
	assert.Equal(t, "555-123-4567", extraction.Matches(results[0].Segments)[0].Text)
	assert.Equal(t, "me@example.com", extraction.Matches(results[1].Segments)[0].Text)
	assert.Equal(t, "nothing here", extraction.Join(results[2].Segments))

	stats := p.GetStats()
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(2), stats.CurrentBatch)
}

func TestProcessFile_CSVWithoutID(t *testing.T) {
	path := writeFile(t, "input.csv", "text\nfirst\nsecond\n")

	var out bytes.Buffer
	p := newTestPipeline(t, nil, &out, testConfig())

	_, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	results := readResults(t, &out)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "2", results[1].ID)
}

func TestProcessFile_CSVMissingTextColumn(t *testing.T) {
	path := writeFile(t, "input.csv", "id,body\n1,hello\n")
	p := newTestPipeline(t, nil, nil, testConfig())

	_, err := p.ProcessFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text column")
}

func TestCSVReader_MalformedRowSkipped(t *testing.T) {
	p := newTestPipeline(t, nil, &bytes.Buffer{}, testConfig())
	readBatch, err := p.csvReader(strings.NewReader("id,text\n" +
		"a,one\n" +
		"b,two,extra\n" +
		"c,three\n"))
	require.NoError(t, err)

	batch, err := readBatch()
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].ID)
	assert.Equal(t, "c", batch[1].ID)
}

func TestCSVReader_ReadError(t *testing.T) {
	p := newTestPipeline(t, nil, &bytes.Buffer{}, testConfig())
	diskErr := errors.New("disk gone")
	readBatch, err := p.csvReader(io.MultiReader(
		strings.NewReader("id,text\na,one\n"),
		iotest.ErrReader(diskErr),
	))
	require.NoError(t, err)

	done := make(chan struct{})
	var batch []*Record
	go func() {
		defer close(done)
		batch, err = readBatch()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("csv reader did not return after a read error")
	}
	require.ErrorIs(t, err, diskErr)
	require.Len(t, batch, 1)
	assert.Equal(t, "one", batch[0].Text)
}

func TestProcessFile_JSONL(t *testing.T) {
	path := writeFile(t, "input.jsonl",
		`{"id":"x","text":"ping 555.123.4567"}`+"\n"+
			`{"id":"y","text":"`+strings.Repeat("z", 100)+`"}`+"\n"+
			`{"text":""}`+"\n")

	var out bytes.Buffer
	p := newTestPipeline(t, nil, &out, testConfig())

	result, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(2), result.ProcessedOK)
	assert.Equal(t, int64(1), result.ProcessedFailed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "y: text is 100 bytes")

	results := readResults(t, &out)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Matched)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, "3", results[2].ID)
	assert.Empty(t, results[2].Segments)
}

func TestProcessFile_MalformedJSON(t *testing.T) {
	path := writeFile(t, "input.json", `{"id":"ok","text":"fine"}`+"\n"+`{"id":`)

	var out bytes.Buffer
	p := newTestPipeline(t, nil, &out, &Config{BatchSize: 10, WorkerCount: 1})

	result, err := p.ProcessFile(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, int64(1), result.TotalRecords)
	assert.Len(t, readResults(t, &out), 1)
}

func TestProcessFile_Parquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)

	writer := parquet.NewGenericWriter[Record](f)
	_, err = writer.Write([]Record{
		{ID: "p1", Text: "mail a@b.io"},
		{ID: "p2", Text: "plain"},
		{ID: "p3", Text: "+1 (555) 123-4567"},
	})
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.NoError(t, f.Close())

	var out bytes.Buffer
	p := newTestPipeline(t, nil, &out, testConfig())

	result, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalRecords)

	results := readResults(t, &out)
	require.Len(t, results, 3)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, 1, results[0].Matched)
	assert.Equal(t, 0, results[1].Matched)
}

func TestProcessFile_Store(t *testing.T) {
	path := writeFile(t, "input.csv", "id,text\n1,555-123-4567\n2,\n3,x@y.io\n")

	st := &fakeInserter{}
	p := newTestPipeline(t, st, nil, testConfig())

	result, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, st.calls)
	require.Len(t, st.records, 2)
	assert.Equal(t, "batch", st.records[0].Source)
	assert.Equal(t, "x@y.io", st.records[1].Text)
	assert.Equal(t, int64(2), result.Inserted)
}

func TestProcessFile_Cancelled(t *testing.T) {
	path := writeFile(t, "input.csv", "text\none\n")
	p := newTestPipeline(t, nil, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessFile(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessFile_MissingFile(t *testing.T) {
	p := newTestPipeline(t, nil, nil, testConfig())
	_, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestNewPipeline_Errors(t *testing.T) {
	_, err := NewPipeline([]parsedtext.Option{{Type: "bogus"}}, nil, nil, testConfig(), zap.NewNop())
	assert.Error(t, err)

	_, err = NewPipeline([]parsedtext.Option{{Pattern: "("}}, nil, nil, testConfig(), zap.NewNop())
	assert.ErrorIs(t, err, extraction.ErrInvalidPattern)

	_, err = NewPipeline(testOptions, nil, nil, &Config{BatchSize: 0, WorkerCount: 1}, zap.NewNop())
	assert.Error(t, err)
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"data.csv":       FormatCSV,
		"data.parquet":   FormatParquet,
		"DATA.PARQUET":   FormatParquet,
		"data.json":      FormatJSON,
		"data.jsonl":     FormatJSON,
		"data.ndjson":    FormatJSON,
		"data":           FormatCSV,
		"dir.v2/data.tx": FormatCSV,
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectFileFormat(name), name)
	}
}
