package chatsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"neuralchat/models"
	wire "neuralchat/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInspectFile(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	file, err := InspectFile(writeFile(t, "shot.png", png))
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, file.Kind)
	assert.Equal(t, "image/png", file.MimeType)
	assert.Equal(t, "shot.png", file.Name)
	assert.Equal(t, int64(len(png)), file.Size)

	// no extension: sniffed from content
	file, err = InspectFile(writeFile(t, "noext", png))
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, file.Kind)

	file, err = InspectFile(writeFile(t, "notes.bin", []byte("plain words")))
	require.NoError(t, err)
	assert.Equal(t, models.KindFile, file.Kind)

	_, err = InspectFile(t.TempDir())
	assert.ErrorIs(t, err, ErrNotAFile)

	_, err = InspectFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInspectFileLimits(t *testing.T) {
	sized := func(name string, size int64) string {
		path := filepath.Join(t.TempDir(), name)
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, f.Truncate(size))
		require.NoError(t, f.Close())
		return path
	}

	_, err := InspectFile(sized("ok.jpg", MaxImageSize))
	assert.NoError(t, err)

	_, err = InspectFile(sized("big.jpg", MaxImageSize+1))
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Contains(t, err.Error(), "maximum size for images is 5MB")

	_, err = InspectFile(sized("big.zip", MaxImageSize+1))
	assert.NoError(t, err)

	_, err = InspectFile(sized("huge.zip", MaxFileSize+1))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestStorageKey(t *testing.T) {
	now := time.UnixMilli(1712345678901)
	assert.Equal(t, "u1/1712345678901_my_file_1_.tar.gz", StorageKey("u1", now, "my file(1).tar.gz"))
	assert.Equal(t, "a_b_c", SanitizeFileName("a/b\\c"))
	assert.Equal(t, "______.txt", SanitizeFileName("данные.txt"))
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, wire.BucketImages, BucketFor(models.KindImage))
	assert.Equal(t, wire.BucketFiles, BucketFor(models.KindFile))
}
