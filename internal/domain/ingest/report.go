package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Step outcomes used in migration reports.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// StepReport records one migration phase.
type StepReport struct {
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Detail   string `json:"detail,omitempty"`
}

// MigrationSummary totals one migration run. DuplicatesFound counts records
// that resolved to an already known product instead of creating a new one.
type MigrationSummary struct {
	FilesProcessed   int    `json:"files_processed"`
	ProductsMigrated int    `json:"products_migrated"`
	DuplicatesFound  int    `json:"duplicates_found"`
	PricesRecorded   int    `json:"prices_recorded"`
	FailedFiles      int    `json:"failed_files"`
	RowErrors        int    `json:"row_errors"`
	Duration         string `json:"duration"`
}

// MigrationReport is the serializable record of a full ingestion run.
type MigrationReport struct {
	StartTime time.Time             `json:"start_time"`
	EndTime   time.Time             `json:"end_time"`
	Steps     map[string]StepReport `json:"steps"`
	Summary   MigrationSummary      `json:"summary"`
}

// JSON renders the report for storage or transmission.
func (r *MigrationReport) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode migration report: %w", err)
	}
	return data, nil
}

// Migration runs a batch of files as a tracked, reported unit. Backup is
// optional; when unset the step is reported as skipped.
type Migration struct {
	Service *Service
	Backup  func(ctx context.Context) error
}

// Run processes all tasks and assembles the phase-by-phase report. Per-file
// failures are counted, not fatal; only setup failures abort the run.
func (m *Migration) Run(ctx context.Context, tasks []Task) (*MigrationReport, []FileResult, error) {
	report := &MigrationReport{
		StartTime: time.Now().UTC(),
		Steps:     map[string]StepReport{},
	}

	step := func(name string, fn func() (string, error)) error {
		start := time.Now()
		detail, err := fn()
		entry := StepReport{Status: StepCompleted, Duration: time.Since(start).String(), Detail: detail}
		if err != nil {
			entry.Status = StepFailed
			entry.Detail = err.Error()
		}
		report.Steps[name] = entry
		return err
	}

	if err := step("init", func() (string, error) {
		if len(tasks) == 0 {
			return "", fmt.Errorf("no files to process")
		}
		return fmt.Sprintf("%d files queued", len(tasks)), nil
	}); err != nil {
		report.EndTime = time.Now().UTC()
		return report, nil, err
	}

	if m.Backup == nil {
		report.Steps["backup"] = StepReport{Status: StepSkipped, Duration: "0s", Detail: "no backup configured"}
	} else if err := step("backup", func() (string, error) {
		return "catalog snapshot written", m.Backup(ctx)
	}); err != nil {
		report.EndTime = time.Now().UTC()
		return report, nil, err
	}

	if err := step("validation", func() (string, error) {
		for _, task := range tasks {
			if !SupportedExt(task.Filename) {
				return "", fmt.Errorf("%s: %w", task.Filename, ErrUnsupportedFormat)
			}
			if task.Supplier == "" {
				return "", fmt.Errorf("%s: missing supplier name", task.Filename)
			}
		}
		return "all filenames and suppliers valid", nil
	}); err != nil {
		report.EndTime = time.Now().UTC()
		return report, nil, err
	}

	var results []FileResult
	_ = step("main", func() (string, error) {
		results = m.Service.ProcessBatch(ctx, tasks)
		return fmt.Sprintf("%d files processed", len(results)), nil
	})

	for _, res := range results {
		report.Summary.FilesProcessed++
		report.Summary.ProductsMigrated += res.Import.Created + res.Import.Updated
		report.Summary.DuplicatesFound += res.Import.Updated
		report.Summary.PricesRecorded += res.Import.AddedPrices
		report.Summary.RowErrors += res.Import.Errors
		if res.Err != nil {
			report.Summary.FailedFiles++
		}
	}

	_ = step("post_validation", func() (string, error) {
		if report.Summary.FailedFiles == len(results) && len(results) > 0 {
			return "", fmt.Errorf("all %d files failed", len(results))
		}
		return fmt.Sprintf("%d of %d files succeeded",
			len(results)-report.Summary.FailedFiles, len(results)), nil
	})

	_ = step("report", func() (string, error) {
		report.EndTime = time.Now().UTC()
		report.Summary.Duration = report.EndTime.Sub(report.StartTime).String()
		return "summary assembled", nil
	})

	return report, results, ctx.Err()
}
