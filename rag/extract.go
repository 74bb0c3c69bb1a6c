package rag

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultProcessedTextsFile is where extracted text is saved between the
// extract and index steps.
const DefaultProcessedTextsFile = "processed_texts.txt"

// ExtractedText is the normalized text of one source file.
type ExtractedText struct {
	File string
	Text string
}

// Extractor turns a folder of office documents into normalized text.
type Extractor struct {
	parsers     *ParserManager
	loader      *Loader
	normalize   func(string) string
	concurrency int
	logger      Logger
	onError     func(path string, err error)
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithParserManager replaces the default parser set.
func WithParserManager(pm *ParserManager) ExtractorOption {
	return func(e *Extractor) {
		e.parsers = pm
	}
}

// WithNormalizer replaces Normalize. Passing nil keeps the raw parser output.
func WithNormalizer(fn func(string) string) ExtractorOption {
	return func(e *Extractor) {
		e.normalize = fn
	}
}

// WithExtractConcurrency bounds how many files are parsed at once.
func WithExtractConcurrency(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithExtractLogger sets the logger used for progress and per-file errors.
func WithExtractLogger(logger Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithExtractErrorHandler is called for every file that fails to parse, in
// addition to the error being logged.
func WithExtractErrorHandler(fn func(path string, err error)) ExtractorOption {
	return func(e *Extractor) {
		e.onError = fn
	}
}

// WithExtractLoader sets the loader used to enumerate folders and fetch URLs.
func WithExtractLoader(loader *Loader) ExtractorOption {
	return func(e *Extractor) {
		e.loader = loader
	}
}

// NewExtractor creates an Extractor with the default parsers, Normalize, and
// four parsing workers.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		parsers:     NewParserManager(),
		normalize:   Normalize,
		concurrency: 4,
		logger:      GlobalLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = NewLoader(WithLogger(e.logger))
	}
	return e
}

// ExtractDir parses every supported file below root. Results follow the walk
// order. A file that fails to parse is logged and skipped; files whose
// normalized text is empty are dropped.
func (e *Extractor) ExtractDir(ctx context.Context, root string) ([]ExtractedText, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve folder: %w", err)
	}
	e.logger.Info("Extracting documents", "root", abs)

	files, err := e.loader.ListDir(ctx, abs)
	if err != nil {
		return nil, err
	}

	var supported []string
	for _, f := range files {
		if e.parsers.Supports(f) {
			supported = append(supported, f)
		} else {
			e.logger.Debug("Skipping unsupported file", "path", f)
		}
	}
	return e.extractFiles(ctx, supported)
}

// ExtractSource accepts a folder, a single file, or an http(s) URL. A
// downloaded file is removed once its text has been extracted.
func (e *Extractor) ExtractSource(ctx context.Context, source string) ([]ExtractedText, error) {
	if IsURL(source) {
		path, err := e.loader.LoadURL(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("failed to load URL: %w", err)
		}
		defer os.RemoveAll(filepath.Dir(path))
		return e.extractFiles(ctx, []string{path})
	}
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, source)
	}
	if info.IsDir() {
		return e.ExtractDir(ctx, source)
	}
	if !e.parsers.Supports(source) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, source)
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}
	return e.extractFiles(ctx, []string{abs})
}

func (e *Extractor) extractFiles(ctx context.Context, files []string) ([]ExtractedText, error) {
	results := make([]*ExtractedText, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := e.extractFile(path)
			if err != nil {
				e.logger.Error(fmt.Sprintf("Error processing %s: %v", path, err))
				if e.onError != nil {
					e.onError(path, err)
				}
				return nil
			}
			if strings.TrimSpace(text) == "" {
				e.logger.Debug("No text extracted", "path", path)
				return nil
			}
			results[i] = &ExtractedText{File: path, Text: text}
			e.logger.Info("Processed: " + path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ExtractedText, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	e.logger.Info("Extraction finished", "files", len(files), "extracted", len(out))
	return out, nil
}

func (e *Extractor) extractFile(path string) (string, error) {
	doc, err := e.parsers.Parse(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(doc.Content)
	if e.normalize != nil {
		text = e.normalize(text)
	}
	return text, nil
}

// WriteProcessedTexts writes each record as a "--- File: <path> ---" header
// line, the text, and a blank line.
func WriteProcessedTexts(w io.Writer, texts []ExtractedText) error {
	bw := bufio.NewWriter(w)
	for _, t := range texts {
		if _, err := fmt.Fprintf(bw, "--- File: %s ---\n%s\n\n", t.File, t.Text); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveProcessedTexts writes texts to path, creating parent directories.
func SaveProcessedTexts(path string, texts []ExtractedText) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteProcessedTexts(f, texts); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

var fileHeaderPattern = regexp.MustCompile(`^--- File: (.+?) ---`)

// ReadProcessedTexts parses the format written by WriteProcessedTexts back
// into documents. Lines are trimmed and joined with single spaces; text
// before the first header is ignored and a header without text after it
// produces no document. Each document carries its path in Metadata["source"].
func ReadProcessedTexts(r io.Reader) ([]Document, error) {
	var (
		docs    []Document
		current string
		lines   []string
	)
	emit := func() {
		content := strings.TrimSpace(strings.Join(lines, " "))
		if content != "" && current != "" {
			docs = append(docs, Document{
				Content:  content,
				Metadata: map[string]string{"source": current},
			})
		}
		lines = nil
	}

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if m := fileHeaderPattern.FindStringSubmatch(line); m != nil {
				emit()
				current = m[1]
			} else {
				lines = append(lines, strings.TrimSpace(line))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read processed texts: %w", err)
		}
	}
	emit()
	return docs, nil
}

// LoadProcessedTexts reads a processed texts file from disk.
func LoadProcessedTexts(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadProcessedTexts(f)
}
