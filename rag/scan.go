package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrFolderNotFound is returned when a scan or extraction root does not exist.
var ErrFolderNotFound = errors.New("folder does not exist")

// ExtensionStats aggregates the files sharing one extension.
type ExtensionStats struct {
	Count int
	Size  int64
}

// FolderReport summarizes a directory tree by file extension. Keys of
// ByExtension are lowercase and include the leading dot; files without an
// extension are grouped under the empty string.
type FolderReport struct {
	Root        string
	ByExtension map[string]*ExtensionStats
	TotalFiles  int
	TotalSize   int64
}

// AnalyzeFolder walks root recursively and tallies regular files by
// extension. Unreadable entries are logged and skipped.
func AnalyzeFolder(ctx context.Context, root string) (*FolderReport, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve folder: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, abs)
	}

	report := &FolderReport{
		Root:        abs,
		ByExtension: make(map[string]*ExtensionStats),
	}

	GlobalLogger.Debug("Scanning folder", "root", abs)
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			GlobalLogger.Warn("Skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			GlobalLogger.Warn("Failed to stat file", "path", path, "error", err)
			return nil
		}
		report.add(filepath.Ext(d.Name()), fi.Size())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}

	GlobalLogger.Debug("Scan finished", "root", abs, "files", report.TotalFiles, "bytes", report.TotalSize)
	return report, nil
}

func (r *FolderReport) add(ext string, size int64) {
	ext = strings.ToLower(ext)
	stats, ok := r.ByExtension[ext]
	if !ok {
		stats = &ExtensionStats{}
		r.ByExtension[ext] = stats
	}
	stats.Count++
	stats.Size += size
	r.TotalFiles++
	r.TotalSize += size
}

// Extensions returns the report keys in ascending order.
func (r *FolderReport) Extensions() []string {
	keys := make([]string, 0, len(r.ByExtension))
	for ext := range r.ByExtension {
		keys = append(keys, ext)
	}
	sort.Strings(keys)
	return keys
}

// WriteReport prints the extension table followed by the folder total.
func WriteReport(w io.Writer, r *FolderReport) error {
	var b strings.Builder
	b.WriteString("\nFile Type Summary:\n")
	fmt.Fprintf(&b, "%-12s %-8s %-10s\n", "Extension", "Count", "Size (MB)")
	b.WriteString(strings.Repeat("-", 35) + "\n")
	for _, ext := range r.Extensions() {
		stats := r.ByExtension[ext]
		display := ext
		if display == "" {
			display = "[No Extension]"
		}
		fmt.Fprintf(&b, "%-12s %-8d %-10.2f\n", display, stats.Count, megabytes(stats.Size))
	}
	fmt.Fprintf(&b, "\nTotal size of all files in the folder: %.2f MB\n", megabytes(r.TotalSize))
	_, err := io.WriteString(w, b.String())
	return err
}

func megabytes(size int64) float64 {
	return float64(size) / (1024 * 1024)
}
