package rag

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Loader resolves document sources: it enumerates local folders and fetches
// remote documents into a temporary directory.
type Loader struct {
	client  *http.Client
	timeout time.Duration
	tempDir string
	logger  Logger
}

// NewLoader creates a new Loader with the given options
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		client:  http.DefaultClient,
		timeout: 30 * time.Second,
		tempDir: os.TempDir(),
		logger:  GlobalLogger,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption is a functional option for configuring a Loader
type LoaderOption func(*Loader)

// WithHTTPClient sets a custom HTTP client for the Loader
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *Loader) {
		l.client = client
	}
}

// WithTimeout sets a custom timeout for the Loader
func WithTimeout(timeout time.Duration) LoaderOption {
	return func(l *Loader) {
		l.timeout = timeout
	}
}

// WithTempDir sets the temporary directory for downloaded files
func WithTempDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.tempDir = dir
	}
}

// WithLogger sets a custom logger for the Loader
func WithLogger(logger Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// IsURL reports whether source is an http or https URL.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// LoadURL downloads a document and returns the local path it was written to.
// The file keeps the base name of the URL path so its extension still drives
// parser selection.
func (l *Loader) LoadURL(ctx context.Context, rawURL string) (string, error) {
	l.logger.Debug("Starting LoadURL", "url", rawURL)
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	filename := path.Base(u.Path)
	if filename == "." || filename == "/" || filename == "" {
		return "", fmt.Errorf("url has no file name: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %s", resp.Status)
	}

	dir, err := os.MkdirTemp(l.tempDir, "knowledge-download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}
	destPath := filepath.Join(dir, filename)

	out, err := os.Create(destPath)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to write file content: %w", err)
	}

	l.logger.Debug("Successfully loaded URL", "url", rawURL, "path", destPath)
	return destPath, nil
}

// ListDir returns the regular files below dir in lexical walk order.
// Unreadable subdirectories are logged and skipped.
func (l *Loader) ListDir(ctx context.Context, dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			l.logger.Warn("Error accessing path", "path", p, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	l.logger.Debug("Listed directory", "dir", dir, "fileCount", len(files))
	return files, nil
}
