// Package ingest drives price list files through extraction, adaptation and
// durable import. Files are processed concurrently by a bounded worker pool
// while per-file results keep their submission order.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hargalist/hargalist-api/internal/domain/adapter"
	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/preprocessor"
	"github.com/hargalist/hargalist-api/pkg/metrics"
)

// File size bounds. Anything outside is rejected before parsing.
const (
	DefaultMaxFileBytes = 100 << 20
	DefaultMinFileBytes = 100
)

var (
	// ErrFileTooLarge is returned for files above the configured cap.
	ErrFileTooLarge = errors.New("ingest: file exceeds size limit")
	// ErrFileTooSmall is returned for files below the plausible minimum.
	ErrFileTooSmall = errors.New("ingest: file below minimum size")
	// ErrUnsupportedFormat is returned for unknown file extensions.
	ErrUnsupportedFormat = errors.New("ingest: unsupported file format")
)

// Importer persists adapted records.
type Importer interface {
	BulkImport(ctx context.Context, supplier string, records []catalog.IngestRecord) (catalog.ImportStats, error)
}

// Task is one price list file to ingest.
type Task struct {
	Supplier string
	Filename string
	Reader   io.Reader
}

// FileResult is the outcome for a single file.
type FileResult struct {
	Filename     string
	Supplier     string
	Extracted    int
	Batch        adapter.BatchStats
	Import       catalog.ImportStats
	Completeness float64
	Duration     time.Duration
	Err          error
}

// Config tunes the ingestion pool.
type Config struct {
	Workers      int
	MaxFileBytes int64
	MinFileBytes int64
}

// DefaultConfig sizes the pool to the machine and applies the standard file
// bounds.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.GOMAXPROCS(0),
		MaxFileBytes: DefaultMaxFileBytes,
		MinFileBytes: DefaultMinFileBytes,
	}
}

// Service runs files through the extract, adapt, import pipeline.
type Service struct {
	pre     *preprocessor.Preprocessor
	adapter *adapter.Adapter
	store   Importer
	metrics *metrics.Ingest
	cfg     Config
	logger  *slog.Logger
}

// NewService wires the pipeline stages together.
func NewService(pre *preprocessor.Preprocessor, ad *adapter.Adapter, store Importer, m *metrics.Ingest, cfg Config, logger *slog.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	if cfg.MinFileBytes <= 0 {
		cfg.MinFileBytes = DefaultMinFileBytes
	}
	return &Service{pre: pre, adapter: ad, store: store, metrics: m, cfg: cfg, logger: logger}
}

// SupportedExt reports whether the filename carries an ingestable extension.
func SupportedExt(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls", ".csv", ".pdf":
		return true
	}
	return false
}

// ProcessFile ingests a single file end to end.
func (s *Service) ProcessFile(ctx context.Context, task Task) FileResult {
	start := time.Now()
	res := FileResult{Filename: task.Filename, Supplier: task.Supplier}
	defer func() {
		res.Duration = time.Since(start)
		s.metrics.ProcessingSeconds.Observe(res.Duration.Seconds())
		status := "ok"
		if res.Err != nil {
			status = "failed"
		}
		s.metrics.FilesProcessed.WithLabelValues(status).Inc()
	}()

	data, err := s.readBounded(task.Reader)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", task.Filename, err)
		return res
	}

	extraction, err := s.extract(ctx, task.Filename, data)
	if err != nil {
		res.Err = err
		return res
	}
	if extraction.ParseError != "" {
		res.Err = fmt.Errorf("%s: %w: %s", task.Filename, catalog.ErrParseFailure, extraction.ParseError)
		return res
	}
	res.Extracted = len(extraction.Pairs())
	res.Completeness = extraction.Completeness()

	batch := s.adapter.Adapt(extraction, task.Supplier, sourceForFile(task.Filename))
	res.Batch = batch.Stats
	s.metrics.RecordsRejected.Add(float64(batch.Stats.Original - batch.Stats.Final))

	stats, err := s.store.BulkImport(ctx, task.Supplier, batch.Records)
	res.Import = stats
	if err != nil {
		res.Err = fmt.Errorf("%s: import: %w", task.Filename, err)
		return res
	}

	s.metrics.ProductsIngested.Add(float64(stats.Created + stats.Updated))
	s.metrics.PricesRecorded.Add(float64(stats.AddedPrices))
	s.metrics.ImportErrors.Add(float64(stats.Errors))

	s.logger.Info("file ingested",
		slog.String("file", task.Filename),
		slog.String("supplier", task.Supplier),
		slog.Int("extracted", res.Extracted),
		slog.Int("created", stats.Created),
		slog.Int("updated", stats.Updated),
		slog.Int("prices", stats.AddedPrices),
	)
	return res
}

func (s *Service) readBounded(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxFileBytes {
		return nil, ErrFileTooLarge
	}
	if int64(len(data)) < s.cfg.MinFileBytes {
		return nil, ErrFileTooSmall
	}
	return data, nil
}

func (s *Service) extract(ctx context.Context, filename string, data []byte) (*preprocessor.Result, error) {
	reader := bytes.NewReader(data)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		return s.pre.Process(ctx, reader), nil
	case ".csv":
		return s.pre.ProcessCSV(ctx, reader), nil
	case ".pdf":
		return s.pre.ProcessPDF(ctx, reader), nil
	default:
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedFormat)
	}
}

func sourceForFile(filename string) catalog.PriceSource {
	if strings.ToLower(filepath.Ext(filename)) == ".pdf" {
		return catalog.SourcePDF
	}
	return catalog.SourceSpreadsheet
}

type indexedTask struct {
	idx  int
	task Task
}

type indexedResult struct {
	idx int
	res FileResult
}

// ProcessBatch ingests many files concurrently. Results are returned in task
// order regardless of completion order.
func (s *Service) ProcessBatch(ctx context.Context, tasks []Task) []FileResult {
	if len(tasks) == 0 {
		return nil
	}

	workerCount := s.cfg.Workers
	if workerCount > len(tasks) {
		workerCount = len(tasks)
	}

	jobs := make(chan indexedTask, workerCount*4)
	results := make(chan indexedResult, workerCount*4)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res := s.ProcessFile(ctx, job.task)
				select {
				case results <- indexedResult{idx: job.idx, res: res}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, task := range tasks {
			select {
			case jobs <- indexedTask{idx: i, task: task}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]FileResult, len(tasks))
	filled := make([]bool, len(tasks))
	for r := range results {
		out[r.idx] = r.res
		filled[r.idx] = true
	}
	// Tasks cut off by cancellation still get a result slot.
	for i := range out {
		if !filled[i] {
			out[i] = FileResult{
				Filename: tasks[i].Filename,
				Supplier: tasks[i].Supplier,
				Err:      ctx.Err(),
			}
		}
	}
	return out
}
