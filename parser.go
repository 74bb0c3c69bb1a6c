package knowledge

import "github.com/teilomillet/knowledge/rag"

// Document is parsed text plus metadata; Metadata["source"] holds the path.
type Document = rag.Document

// ExtractedText is the normalized text of one source file.
type ExtractedText = rag.ExtractedText

// NewParser returns a parser for PDF, DOCX, XLSX, CSV and PPTX files. With
// includeText, .txt files are parsed too.
func NewParser(includeText bool) *rag.ParserManager {
	pm := rag.NewParserManager()
	if includeText {
		pm.AddParser(rag.FileTypeText, rag.NewTextParser())
	}
	return pm
}
