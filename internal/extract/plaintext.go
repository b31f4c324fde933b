package extract

import (
	"context"
	"fmt"
	"strings"
)

// PlainText passes text payloads through unchanged, normalizing to valid
// UTF-8.
type PlainText struct{}

func NewPlainText() *PlainText {
	return &PlainText{}
}

func (p *PlainText) Extract(ctx context.Context, doc Document) (*Result, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	text := strings.ToValidUTF8(string(doc.Data), "")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document contains no text")
	}
	return newResult(text, "plaintext"), nil
}
