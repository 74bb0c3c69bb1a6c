package rag

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Document represents a parsed document with its content and associated metadata.
// The Content field contains the extracted text, while Metadata stores additional
// information about the document such as file type and path.
type Document struct {
	Content  string            // The extracted text content of the document
	Metadata map[string]string // Additional metadata about the document
}

// Source returns the path the document was read from, if known.
func (d Document) Source() string {
	if d.Metadata == nil {
		return ""
	}
	if src := d.Metadata["source"]; src != "" {
		return src
	}
	return d.Metadata["file_path"]
}

// Parser defines the interface for document parsing implementations.
// Any type that implements this interface can be registered with the ParserManager
// to handle specific file types.
type Parser interface {
	// Parse processes a file at the given path and returns a Document.
	// It returns an error if the parsing operation fails.
	Parse(filePath string) (Document, error)
}

// ErrUnsupportedFileType is returned by ParserManager.Parse when no parser is
// registered for the detected file type.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// File types understood by the default detector.
const (
	FileTypePDF         = "pdf"
	FileTypeDOCX        = "docx"
	FileTypeSpreadsheet = "spreadsheet"
	FileTypePPTX        = "pptx"
	FileTypeText        = "text"
	FileTypeUnknown     = "unknown"
)

// ParserManager coordinates document parsing by managing different Parser implementations
// and routing files to the appropriate parser based on their type.
type ParserManager struct {
	// fileTypeDetector determines the file type based on the file path.
	fileTypeDetector func(string) string
	// parsers stores the registered parsers for different file types.
	parsers map[string]Parser
}

// NewParserManager creates a ParserManager with parsers for the office
// formats the assistant ingests: PDF, DOCX, XLSX/CSV and PPTX. Plain text is
// detected but only parsed when a text parser is added with AddParser.
func NewParserManager() *ParserManager {
	pm := &ParserManager{
		fileTypeDetector: DefaultFileTypeDetector,
		parsers:          make(map[string]Parser),
	}

	pm.parsers[FileTypePDF] = NewPDFParser()
	pm.parsers[FileTypeDOCX] = NewDOCXParser()
	pm.parsers[FileTypeSpreadsheet] = NewSpreadsheetParser()
	pm.parsers[FileTypePPTX] = NewPPTXParser()

	return pm
}

// Parse processes a document using the appropriate parser based on the file type.
// Returns an error wrapping ErrUnsupportedFileType if no suitable parser is
// registered, or the parser's error if parsing fails.
func (pm *ParserManager) Parse(filePath string) (Document, error) {
	GlobalLogger.Debug("Starting to parse file", "path", filePath)
	fileType := pm.fileTypeDetector(filePath)
	parser, ok := pm.parsers[fileType]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedFileType, fileType)
	}
	doc, err := parser.Parse(filePath)
	if err != nil {
		GlobalLogger.Debug("Failed to parse document", "path", filePath, "error", err)
		return Document{}, err
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string)
	}
	doc.Metadata["source"] = filePath
	GlobalLogger.Debug("Successfully parsed document", "path", filePath, "type", fileType)
	return doc, nil
}

// Supports reports whether a parser is registered for the file's type.
func (pm *ParserManager) Supports(filePath string) bool {
	_, ok := pm.parsers[pm.fileTypeDetector(filePath)]
	return ok
}

// DefaultFileTypeDetector maps a path to a file type by its extension.
// Files without an extension are sniffed so that extensionless PDFs are
// still picked up.
func DefaultFileTypeDetector(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return FileTypePDF
	case ".docx":
		return FileTypeDOCX
	case ".xlsx", ".csv":
		return FileTypeSpreadsheet
	case ".pptx":
		return FileTypePPTX
	case ".txt":
		return FileTypeText
	case "":
		return sniffFileType(filePath)
	default:
		return FileTypeUnknown
	}
}

func sniffFileType(filePath string) string {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return FileTypeUnknown
	}
	if mtype.Is("application/pdf") {
		return FileTypePDF
	}
	return FileTypeUnknown
}

// SetFileTypeDetector allows customization of how file types are detected.
func (pm *ParserManager) SetFileTypeDetector(detector func(string) string) {
	pm.fileTypeDetector = detector
}

// AddParser registers a new parser for a specific file type.
// This allows users to extend the system with custom parsers for additional
// file formats.
func (pm *ParserManager) AddParser(fileType string, parser Parser) {
	pm.parsers[fileType] = parser
}

// FileTypes lists the file types that currently have a parser.
func (pm *ParserManager) FileTypes() []string {
	types := make([]string, 0, len(pm.parsers))
	for t := range pm.parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// PDFParser implements the Parser interface for PDF files using the
// ledongthuc/pdf library for text extraction.
type PDFParser struct{}

// NewPDFParser creates a new PDFParser instance.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse implements the Parser interface for PDF files.
func (p *PDFParser) Parse(filePath string) (Document, error) {
	content, err := p.extractText(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("failed to extract text: %w", err)
	}
	return Document{
		Content: content,
		Metadata: map[string]string{
			"file_type": FileTypePDF,
			"file_path": filePath,
		},
	}, nil
}

// extractText reads the PDF page by page. The pdf package panics on some
// malformed inputs, so panics are turned into errors.
func (p *PDFParser) extractText(filePath string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}

	reader, err := pdf.NewReader(file, fileInfo.Size())
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		if content != "" {
			pages = append(pages, content)
		}
	}

	return strings.TrimSpace(strings.Join(pages, "\n")), nil
}

// SpreadsheetParser reads XLSX workbooks with excelize and CSV files with
// encoding/csv. Only the first worksheet of a workbook is read. The first row
// is treated as the header and every row becomes one line of space separated
// cells; empty cells are left out.
type SpreadsheetParser struct{}

// NewSpreadsheetParser creates a new SpreadsheetParser instance.
func NewSpreadsheetParser() *SpreadsheetParser {
	return &SpreadsheetParser{}
}

// Parse implements the Parser interface for .xlsx and .csv files.
func (p *SpreadsheetParser) Parse(filePath string) (Document, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(filePath), ".csv") {
		rows, err = readCSVRows(filePath)
	} else {
		rows, err = readWorkbookRows(filePath)
	}
	if err != nil {
		return Document{}, err
	}
	return Document{
		Content: renderRows(rows),
		Metadata: map[string]string{
			"file_type": FileTypeSpreadsheet,
			"file_path": filePath,
		},
	}, nil
}

func readWorkbookRows(filePath string) ([][]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSVRows(filePath string) ([][]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func renderRows(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " "))
		}
	}
	return strings.Join(lines, "\n")
}

// TextParser implements the Parser interface for plain text files.
type TextParser struct{}

// NewTextParser creates a new TextParser instance.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse implements the Parser interface for text files.
func (p *TextParser) Parse(filePath string) (Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read file: %w", err)
	}
	return Document{
		Content: string(content),
		Metadata: map[string]string{
			"file_type": FileTypeText,
			"file_path": filePath,
		},
	}, nil
}
