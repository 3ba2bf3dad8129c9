package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArchive(t *testing.T) *LocalArchive {
	t.Helper()
	archive, err := NewLocalArchive(t.TempDir())
	require.NoError(t, err)
	return archive
}

func TestStoreAndOpen(t *testing.T) {
	archive := testArchive(t)
	content := "nama produk,harga\nBeras Premium 5kg,75.000\n"

	info, err := archive.Store(context.Background(), "toko sembako jaya", "harga-agustus.csv", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, "harga-agustus.csv", info.Name)
	assert.Equal(t, "toko sembako jaya", info.Supplier)
	assert.Equal(t, int64(len(content)), info.Size)

	r, opened, err := archive.Open(context.Background(), info.ID)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, info.ID, opened.ID)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestStore_SanitizesPaths(t *testing.T) {
	archive := testArchive(t)

	info, err := archive.Store(context.Background(), "pt. sinar/terang", "../../etc/passwd", strings.NewReader("not a price list but long enough to store"))
	require.NoError(t, err)
	assert.NotContains(t, info.Path, "..")

	r, _, err := archive.Open(context.Background(), info.ID)
	require.NoError(t, err)
	r.Close()
}

func TestList_FiltersBySupplier(t *testing.T) {
	archive := testArchive(t)
	gofakeit.Seed(11)

	for i := 0; i < 3; i++ {
		content := fmt.Sprintf("%s,%d\n", gofakeit.ProductName(), gofakeit.Number(1000, 99000))
		_, err := archive.Store(context.Background(), "supplier a", fmt.Sprintf("list-%d.csv", i), strings.NewReader(content))
		require.NoError(t, err)
	}
	_, err := archive.Store(context.Background(), "supplier b", "other.csv", strings.NewReader("x,1\n"))
	require.NoError(t, err)

	onlyA, err := archive.List(context.Background(), "supplier a")
	require.NoError(t, err)
	assert.Len(t, onlyA, 3)

	all, err := archive.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestDelete(t *testing.T) {
	archive := testArchive(t)

	info, err := archive.Store(context.Background(), "supplier a", "list.csv", strings.NewReader("x,1\n"))
	require.NoError(t, err)

	require.NoError(t, archive.Delete(context.Background(), info.ID))

	_, err = archive.GetInfo(context.Background(), info.ID)
	assert.Error(t, err)
}

func TestGetInfo_UnknownID(t *testing.T) {
	archive := testArchive(t)
	_, err := archive.GetInfo(context.Background(), uuid.New())
	assert.Error(t, err)
}
