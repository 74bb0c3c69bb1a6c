package rag

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Office Open XML documents are zip archives of XML parts. The parsers below
// stream the relevant parts with encoding/xml and only look at local element
// names, so both the transitional and strict namespaces are accepted.

// DOCXParser extracts paragraph text from Word documents.
type DOCXParser struct{}

// NewDOCXParser creates a new DOCXParser instance.
func NewDOCXParser() *DOCXParser {
	return &DOCXParser{}
}

// Parse returns every paragraph of word/document.xml, one per line.
// Tabs become "\t" and manual breaks become "\n".
func (p *DOCXParser) Parse(filePath string) (Document, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	part, err := openZipPart(&zr.Reader, "word/document.xml")
	if err != nil {
		return Document{}, err
	}
	defer part.Close()

	paragraphs, err := docxParagraphs(part)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read document.xml: %w", err)
	}

	return Document{
		Content: strings.Join(paragraphs, "\n"),
		Metadata: map[string]string{
			"file_type": FileTypeDOCX,
			"file_path": filePath,
		},
	}, nil
}

// docxParagraphs collects w:p elements. Paragraphs nested in text boxes are
// emitted on their own, after the paragraph that holds them.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		stack      []*strings.Builder
		inText     bool
		runDepth   int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				stack = append(stack, &strings.Builder{})
			case "r":
				runDepth++
			case "t":
				inText = true
			case "tab":
				// w:tab also appears as a tab stop inside w:pPr; only run tabs are text.
				if runDepth > 0 && len(stack) > 0 {
					stack[len(stack)-1].WriteByte('\t')
				}
			case "br", "cr":
				if runDepth > 0 && len(stack) > 0 {
					stack[len(stack)-1].WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if len(stack) == 0 {
					continue
				}
				paragraphs = append(paragraphs, stack[len(stack)-1].String())
				stack = stack[:len(stack)-1]
			case "r":
				if runDepth > 0 {
					runDepth--
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && len(stack) > 0 {
				stack[len(stack)-1].Write(t)
			}
		}
	}
	return paragraphs, nil
}

// PPTXParser extracts the text of every shape on every slide.
type PPTXParser struct{}

// NewPPTXParser creates a new PPTXParser instance.
func NewPPTXParser() *PPTXParser {
	return &PPTXParser{}
}

// Parse walks slides in presentation order, falling back to numeric order
// (slide1.xml, slide2.xml, ...) when ppt/presentation.xml is absent. Each
// shape carrying a text body contributes its paragraphs joined by "\n",
// followed by a newline.
func (p *PPTXParser) Parse(filePath string) (Document, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return Document{}, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer zr.Close()

	var b strings.Builder
	for _, name := range slideParts(&zr.Reader) {
		part, err := openZipPart(&zr.Reader, name)
		if err != nil {
			return Document{}, err
		}
		shapes, err := slideShapeTexts(part)
		part.Close()
		if err != nil {
			return Document{}, fmt.Errorf("failed to read %s: %w", name, err)
		}
		for _, text := range shapes {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	return Document{
		Content: strings.TrimSpace(b.String()),
		Metadata: map[string]string{
			"file_type": FileTypePPTX,
			"file_path": filePath,
		},
	}, nil
}

// slideParts returns the slide part names in presentation order: the
// p:sldIdLst of ppt/presentation.xml resolved through its relationships.
// Without those parts the slides are ordered by the number in their name.
func slideParts(zr *zip.Reader) []string {
	exists := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		exists[f.Name] = true
	}
	if names := presentationSlideOrder(zr, exists); len(names) > 0 {
		return names
	}

	type slide struct {
		name string
		num  int
	}
	var slides []slide
	for _, f := range zr.File {
		dir, base := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(base, "slide") || !strings.HasSuffix(base, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{name: f.Name, num: num})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return names
}

func presentationSlideOrder(zr *zip.Reader, exists map[string]bool) []string {
	if !exists["ppt/presentation.xml"] || !exists["ppt/_rels/presentation.xml.rels"] {
		return nil
	}
	ids, err := readZipPart(zr, "ppt/presentation.xml", slideRelIDs)
	if err != nil {
		return nil
	}
	targets, err := readZipPart(zr, "ppt/_rels/presentation.xml.rels", relationshipTargets)
	if err != nil {
		return nil
	}

	var names []string
	for _, id := range ids {
		target, ok := targets[id]
		if !ok {
			continue
		}
		name := path.Join("ppt", target)
		if strings.HasPrefix(target, "/") {
			name = strings.TrimPrefix(path.Clean(target), "/")
		}
		if exists[name] {
			names = append(names, name)
		}
	}
	return names
}

func readZipPart[T any](zr *zip.Reader, name string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	part, err := openZipPart(zr, name)
	if err != nil {
		return zero, err
	}
	defer part.Close()
	return read(part)
}

// slideRelIDs returns the relationship id (r:id) of each p:sldId in order.
func slideRelIDs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var ids []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sldId" {
			continue
		}
		// The unprefixed id is the slide id; the namespaced one is the r:id.
		for _, a := range se.Attr {
			if a.Name.Local == "id" && a.Name.Space != "" {
				ids = append(ids, a.Value)
			}
		}
	}
}

// relationshipTargets maps each Relationship Id to its Target.
func relationshipTargets(r io.Reader) (map[string]string, error) {
	dec := xml.NewDecoder(r)
	targets := make(map[string]string)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return targets, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			targets[id] = target
		}
	}
}

// slideShapeTexts returns the text of each p:sp shape that has a p:txBody.
func slideShapeTexts(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		shapes     []string
		inShape    bool
		hasBody    bool
		paragraphs []string
		current    *strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				inShape, hasBody, paragraphs = true, false, nil
			case "txBody":
				if inShape {
					hasBody = true
				}
			case "p":
				if inShape && hasBody {
					current = &strings.Builder{}
				}
			case "t":
				inText = true
			case "br":
				if current != nil {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "sp":
				if inShape && hasBody {
					shapes = append(shapes, strings.Join(paragraphs, "\n"))
				}
				inShape, hasBody = false, false
			case "p":
				if current != nil {
					paragraphs = append(paragraphs, current.String())
					current = nil
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && current != nil {
				current.Write(t)
			}
		}
	}
	return shapes, nil
}

func openZipPart(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open %s: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("missing part %s", name)
}
