// Package extract provides the document-understanding capability: given raw
// bytes, produce text or fail. The dispatcher never looks inside; it only
// consumes the Extractor contract.
package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the closed set of document variants. Classification is a pure
// function of the payload; no runtime type inspection happens downstream.
type Kind string

const (
	KindPDFText    Kind = "pdf_text"
	KindPDFScanned Kind = "pdf_scanned"
	KindImage      Kind = "image"
	KindPlainText  Kind = "plain_text"
	KindUnknown    Kind = "unknown"
)

// Document is one payload handed to an extractor.
type Document struct {
	Data     []byte
	Filename string
	Kind     Kind
}

// Result is the extracted text plus cheap derived metadata.
type Result struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
	CharCount int    `json:"char_count"`
	Engine    string `json:"engine"`
}

// Extractor converts raw document bytes to text or fails.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, doc Document) (*Result, error)

func (f Func) Extract(ctx context.Context, doc Document) (*Result, error) {
	return f(ctx, doc)
}

var pdfSignature = []byte("%PDF")

// Classify selects a variant for the payload by content sniffing. PDFs with
// an embedded font resource are assumed to carry a text layer; PDFs without
// one are treated as scanned rasters needing OCR.
func Classify(data []byte, filename string) Kind {
	if bytes.HasPrefix(data, pdfSignature) {
		if bytes.Contains(data, []byte("/Font")) {
			return KindPDFText
		}
		return KindPDFScanned
	}

	mt := mimetype.Detect(data)
	switch {
	case strings.HasPrefix(mt.String(), "image/"):
		return KindImage
	case mt.Is("text/plain") || strings.HasPrefix(mt.String(), "text/"):
		return KindPlainText
	}
	return KindUnknown
}

func newResult(text, engine string) *Result {
	text = strings.TrimSpace(text)
	return &Result{
		Text:      text,
		WordCount: len(strings.Fields(text)),
		CharCount: len(text),
		Engine:    engine,
	}
}
