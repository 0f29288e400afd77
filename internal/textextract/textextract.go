// Package textextract pulls plain text out of uploaded story files.
package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var (
	// ErrUnsupportedType is returned for anything that is not .txt or .docx.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrMalformed is returned when a supported file cannot be parsed.
	ErrMalformed = errors.New("malformed document")
)

// Extract returns the text of a .txt or .docx upload. The type is decided
// from the content, with the file name as a tie-breaker for plain text.
func Extract(filename string, data []byte) (string, error) {
	mt := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case mt.Is(docxMIME):
		return extractDocx(data)
	case mt.Is("text/plain") || (ext == ".txt" && utf8.Valid(data)):
		return extractText(data)
	case mt.Is("application/zip") && ext == ".docx":
		// some writers omit the markers mimetype keys on
		return extractDocx(data)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

func extractText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrMalformed)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// extractDocx reads word/document.xml and joins paragraphs with newlines.
// Tabs and explicit breaks inside a paragraph are kept.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", ErrMalformed)
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer rc.Close()

	var (
		paragraph  strings.Builder
		paragraphs []string
		inText     bool
	)
	dec := xml.NewDecoder(io.LimitReader(rc, 64<<20))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				paragraph.WriteByte('\t')
			case "br", "cr":
				paragraph.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, paragraph.String())
				paragraph.Reset()
			}
		case xml.CharData:
			if inText {
				paragraph.Write(t)
			}
		}
	}
	if paragraph.Len() > 0 {
		paragraphs = append(paragraphs, paragraph.String())
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n")), nil
}
