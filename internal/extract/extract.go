// Package extract pulls plain text out of resume and cover letter files.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Kind is a document format the extractor understands.
type Kind string

const (
	KindUnknown Kind = ""
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindText    Kind = "text"
)

const docxBody = "word/document.xml"

var ErrUnsupported = errors.New("unsupported document type")

var extractors = map[Kind]func([]byte) (string, error){
	KindPDF:  pdfText,
	KindDOCX: docxText,
	KindText: plainText,
}

// FromFile reads path and returns its text.
func FromFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	text, err := FromBytes(ctx, data, "", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", path, err)
	}
	return text, nil
}

// FromBytes extracts text from data. The declared content type wins; without one the
// file extension is tried and then the content is sniffed.
func FromBytes(ctx context.Context, data []byte, contentType string, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind, label := Detect(contentType, name, data)
	fn, ok := extractors[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, label)
	}
	return fn(data)
}

// Detect resolves the document kind. label describes what was seen when the kind is unknown.
func Detect(contentType string, name string, data []byte) (Kind, string) {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".pdf":
			return KindPDF, ".pdf"
		case ".docx":
			return KindDOCX, ".docx"
		case ".txt", ".md":
			return KindText, ".txt"
		}
		ct, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	switch ct {
	case "application/pdf":
		return KindPDF, ct
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return KindDOCX, ct
	case "text/plain", "text/markdown":
		return KindText, ct
	case "application/zip":
		if hasDocxBody(data) {
			return KindDOCX, ct
		}
	}
	return KindUnknown, ct
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not utf-8", ErrUnsupported)
	}
	return strings.TrimSpace(string(data)), nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func docxText(data []byte) (string, error) {
	f, err := docxEntry(data)
	if err != nil {
		return "", err
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return paragraphs(rc)
}

func docxEntry(data []byte) (*zip.File, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == docxBody {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s missing", ErrUnsupported, docxBody)
}

func hasDocxBody(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	_, err := docxEntry(data)
	return err == nil
}

// paragraphs joins character data, breaking lines at </w:p> and <w:br/>.
func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && b.Len() > 0 {
				b.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
