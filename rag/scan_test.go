package rag

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644))
}

func TestAnalyzeFolder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), 100)
	writeFile(t, filepath.Join(root, "sub", "B.PDF"), 50)
	writeFile(t, filepath.Join(root, "sub", "deep", "notes.docx"), 10)
	writeFile(t, filepath.Join(root, "README"), 5)

	report, err := AnalyzeFolder(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalFiles)
	assert.Equal(t, int64(165), report.TotalSize)
	assert.Equal(t, []string{"", ".docx", ".pdf"}, report.Extensions())
	assert.Equal(t, ExtensionStats{Count: 2, Size: 150}, *report.ByExtension[".pdf"])
	assert.Equal(t, ExtensionStats{Count: 1, Size: 5}, *report.ByExtension[""])

	var count int
	var size int64
	for _, s := range report.ByExtension {
		count += s.Count
		size += s.Size
	}
	assert.Equal(t, report.TotalFiles, count)
	assert.Equal(t, report.TotalSize, size)
}

func TestAnalyzeFolderMissing(t *testing.T) {
	_, err := AnalyzeFolder(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestAnalyzeFolderCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AnalyzeFolder(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteReport(t *testing.T) {
	report := &FolderReport{
		ByExtension: map[string]*ExtensionStats{
			".pdf": {Count: 3, Size: 1310720},
			"":     {Count: 1, Size: 0},
		},
		TotalFiles: 4,
		TotalSize:  1310720,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, report))

	want := "\nFile Type Summary:\n" +
		"Extension    Count    Size (MB) \n" +
		"-----------------------------------\n" +
		"[No Extension] 1        0.00      \n" +
		".pdf         3        1.25      \n" +
		"\nTotal size of all files in the folder: 1.25 MB\n"
	assert.Equal(t, want, buf.String())
}
