package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs local OCR over raster images. This is CPU-bound work; the
// pool keeps it on the CPU tier so it can't be starved by network waits.
type Tesseract struct {
	langs []string
}

func NewTesseract(langs string) *Tesseract {
	parts := strings.Split(langs, ",")
	var cleaned []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{"eng"}
	}
	return &Tesseract{langs: cleaned}
}

func (t *Tesseract) Extract(ctx context.Context, doc Document) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.langs...); err != nil {
		return nil, fmt.Errorf("set OCR language: %w", err)
	}
	if err := client.SetImageFromBytes(doc.Data); err != nil {
		return nil, fmt.Errorf("load image for OCR: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("OCR produced no text")
	}

	slog.Debug("tesseract OCR finished", "filename", doc.Filename, "chars", len(text))
	return newResult(text, "tesseract"), nil
}
