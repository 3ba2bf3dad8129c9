package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hargalist/hargalist-api/internal/domain/adapter"
	"github.com/hargalist/hargalist-api/internal/domain/catalog"
	"github.com/hargalist/hargalist-api/internal/domain/preprocessor"
	"github.com/hargalist/hargalist-api/pkg/metrics"
)

type fakeImporter struct {
	mu      sync.Mutex
	batches map[string][]catalog.IngestRecord
	err     error
}

func (f *fakeImporter) BulkImport(_ context.Context, supplier string, records []catalog.IngestRecord) (catalog.ImportStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return catalog.ImportStats{}, f.err
	}
	if f.batches == nil {
		f.batches = map[string][]catalog.IngestRecord{}
	}
	f.batches[supplier] = append(f.batches[supplier], records...)
	return catalog.ImportStats{Created: len(records), AddedPrices: len(records)}, nil
}

const sampleCSV = `nama produk,harga
Beras Premium 5kg,75.000
Minyak Goreng Bimoli 2L,38.500
Teh Botol Sosro 350ml,5.000
Gula Pasir Gulaku 1kg,16.000
`

func testService(t *testing.T, store Importer, cfg Config) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pre := preprocessor.New(preprocessor.DefaultConfig(), logger)
	ad := adapter.New(logger)
	m := metrics.NewIngest(prometheus.NewRegistry())
	return NewService(pre, ad, store, m, cfg, logger)
}

func TestProcessFile_CSV(t *testing.T) {
	store := &fakeImporter{}
	svc := testService(t, store, DefaultConfig())

	res := svc.ProcessFile(context.Background(), Task{
		Supplier: "toko sembako jaya",
		Filename: "pricelist.csv",
		Reader:   strings.NewReader(sampleCSV),
	})

	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Extracted)
	assert.Equal(t, 4, res.Batch.Final)
	assert.Equal(t, 4, res.Import.Created)
	assert.Greater(t, res.Duration.Nanoseconds(), int64(0))

	records := store.batches["toko sembako jaya"]
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.Equal(t, catalog.SourceSpreadsheet, rec.Source)
		assert.True(t, rec.Price.IsPositive())
	}
}

func TestProcessFile_UnsupportedExtension(t *testing.T) {
	svc := testService(t, &fakeImporter{}, DefaultConfig())

	res := svc.ProcessFile(context.Background(), Task{
		Supplier: "toko sembako jaya",
		Filename: "pricelist.docx",
		Reader:   strings.NewReader(sampleCSV),
	})

	assert.ErrorIs(t, res.Err, ErrUnsupportedFormat)
}

func TestProcessFile_SizeBounds(t *testing.T) {
	svc := testService(t, &fakeImporter{}, DefaultConfig())
	res := svc.ProcessFile(context.Background(), Task{
		Supplier: "toko sembako jaya",
		Filename: "tiny.csv",
		Reader:   strings.NewReader("nama,harga\n"),
	})
	assert.ErrorIs(t, res.Err, ErrFileTooSmall)

	small := testService(t, &fakeImporter{}, Config{MaxFileBytes: 64, MinFileBytes: 1})
	res = small.ProcessFile(context.Background(), Task{
		Supplier: "toko sembako jaya",
		Filename: "big.csv",
		Reader:   strings.NewReader(sampleCSV),
	})
	assert.ErrorIs(t, res.Err, ErrFileTooLarge)
}

func TestProcessFile_ImportFailure(t *testing.T) {
	store := &fakeImporter{err: errors.New("connection reset")}
	svc := testService(t, store, DefaultConfig())

	res := svc.ProcessFile(context.Background(), Task{
		Supplier: "toko sembako jaya",
		Filename: "pricelist.csv",
		Reader:   strings.NewReader(sampleCSV),
	})

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "import")
}

func TestProcessBatch_PreservesOrder(t *testing.T) {
	store := &fakeImporter{}
	svc := testService(t, store, DefaultConfig())

	tasks := []Task{
		{Supplier: "supplier a", Filename: "a.csv", Reader: strings.NewReader(sampleCSV)},
		{Supplier: "supplier b", Filename: "bad.docx", Reader: strings.NewReader(sampleCSV)},
		{Supplier: "supplier c", Filename: "c.csv", Reader: strings.NewReader(sampleCSV)},
	}

	results := svc.ProcessBatch(context.Background(), tasks)
	require.Len(t, results, 3)
	assert.Equal(t, "a.csv", results[0].Filename)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrUnsupportedFormat)
	assert.Equal(t, "c.csv", results[2].Filename)
	assert.NoError(t, results[2].Err)
}

func TestMigrationRun(t *testing.T) {
	store := &fakeImporter{}
	svc := testService(t, store, DefaultConfig())
	migration := &Migration{Service: svc}

	report, results, err := migration.Run(context.Background(), []Task{
		{Supplier: "supplier a", Filename: "a.csv", Reader: strings.NewReader(sampleCSV)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, StepCompleted, report.Steps["init"].Status)
	assert.Equal(t, StepSkipped, report.Steps["backup"].Status)
	assert.Equal(t, StepCompleted, report.Steps["validation"].Status)
	assert.Equal(t, StepCompleted, report.Steps["main"].Status)
	assert.Equal(t, StepCompleted, report.Steps["post_validation"].Status)
	assert.Equal(t, StepCompleted, report.Steps["report"].Status)

	assert.Equal(t, 1, report.Summary.FilesProcessed)
	assert.Equal(t, 4, report.Summary.ProductsMigrated)
	assert.Equal(t, 0, report.Summary.DuplicatesFound)
	assert.Equal(t, 4, report.Summary.PricesRecorded)
	assert.Equal(t, 0, report.Summary.FailedFiles)
	assert.False(t, report.EndTime.Before(report.StartTime))

	data, err := report.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "start_time")
	assert.Contains(t, decoded, "steps")
	assert.Contains(t, decoded, "summary")
}

func TestMigrationRun_BackupHook(t *testing.T) {
	store := &fakeImporter{}
	svc := testService(t, store, DefaultConfig())

	var backedUp bool
	migration := &Migration{Service: svc, Backup: func(context.Context) error {
		backedUp = true
		return nil
	}}

	report, _, err := migration.Run(context.Background(), []Task{
		{Supplier: "supplier a", Filename: "a.csv", Reader: strings.NewReader(sampleCSV)},
	})
	require.NoError(t, err)
	assert.True(t, backedUp)
	assert.Equal(t, StepCompleted, report.Steps["backup"].Status)
}

func TestMigrationRun_ValidationFailure(t *testing.T) {
	svc := testService(t, &fakeImporter{}, DefaultConfig())
	migration := &Migration{Service: svc}

	report, results, err := migration.Run(context.Background(), []Task{
		{Supplier: "supplier a", Filename: "notes.txt", Reader: strings.NewReader(sampleCSV)},
	})
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, StepFailed, report.Steps["validation"].Status)
	_, ranMain := report.Steps["main"]
	assert.False(t, ranMain)
}

func TestMigrationRun_NoTasks(t *testing.T) {
	svc := testService(t, &fakeImporter{}, DefaultConfig())
	migration := &Migration{Service: svc}

	report, _, err := migration.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, StepFailed, report.Steps["init"].Status)
}

func TestSupportedExt(t *testing.T) {
	assert.True(t, SupportedExt("harga.XLSX"))
	assert.True(t, SupportedExt("harga.csv"))
	assert.True(t, SupportedExt("harga.pdf"))
	assert.False(t, SupportedExt("harga.txt"))
	assert.False(t, SupportedExt("harga"))
}
