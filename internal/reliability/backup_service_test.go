package reliability

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveDatabases(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "history.db"), []byte("history payload"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "cache.db"), []byte("cache payload"), 0644))
	// Non-database files must be skipped
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "notes.txt"), []byte("skip me"), 0644))

	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")
	manifest, err := ArchiveDatabases(dataDir, archivePath)
	require.NoError(t, err)

	require.Len(t, manifest.Files, 2)
	assert.Equal(t, "cache.db", manifest.Files[0].Name, "entries are ordered by name")
	assert.Equal(t, "history.db", manifest.Files[1].Name)

	wantSum := sha256.Sum256([]byte("cache payload"))
	assert.Equal(t, hex.EncodeToString(wantSum[:]), manifest.Files[0].SHA256)
	assert.Equal(t, int64(len("cache payload")), manifest.Files[0].SizeBytes)

	// Read the archive back and verify contents match the manifest
	file, err := os.Open(archivePath)
	require.NoError(t, err)
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	require.NoError(t, err)
	tr := tar.NewReader(gzr)

	contents := map[string][]byte{}
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[header.Name] = data
	}

	assert.Equal(t, []byte("history payload"), contents["history.db"])
	assert.Equal(t, []byte("cache payload"), contents["cache.db"])
	assert.NotContains(t, contents, "notes.txt")

	var embedded Manifest
	require.NoError(t, json.Unmarshal(contents["manifest.json"], &embedded))
	assert.Equal(t, manifest.Files, embedded.Files)
}

func TestArchiveDatabasesEmptyDir(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")
	manifest, err := ArchiveDatabases(t.TempDir(), archivePath)
	require.NoError(t, err)
	assert.Empty(t, manifest.Files, "an empty data dir yields an empty manifest, the caller decides whether that is an error")
}
