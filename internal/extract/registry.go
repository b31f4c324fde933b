package extract

import (
	"fmt"
	"log/slog"
)

type entry struct {
	ex Extractor
	// ioBound marks extractors that spend their time waiting on the
	// network; the pool runs those on its I/O tier instead of the CPU tier.
	ioBound bool
}

// Registry maps document kinds to extractor variants.
type Registry struct {
	byKind map[Kind]entry
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind]entry)}
}

// Register binds an extractor to a document kind.
func (r *Registry) Register(kind Kind, ex Extractor, ioBound bool) {
	r.byKind[kind] = entry{ex: ex, ioBound: ioBound}
}

// For returns the extractor for a kind. The second return marks the
// extractor as I/O-bound. An error means the kind has no registered variant.
func (r *Registry) For(kind Kind) (Extractor, bool, error) {
	e, ok := r.byKind[kind]
	if !ok {
		return nil, false, fmt.Errorf("no extractor for document kind %q", kind)
	}
	return e.ex, e.ioBound, nil
}

// RegistryConfig selects which variants get wired.
type RegistryConfig struct {
	OpenAIAPIKey   string
	VisionModel    string
	TesseractLangs string
}

// BuildRegistry wires the default variant set. Plain text and PDFs with a
// text layer are always handled locally. Images go through Tesseract.
// Scanned PDFs need the vision model; without an API key they stay
// unregistered and fail at processing time with a clear error.
func BuildRegistry(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Register(KindPlainText, NewPlainText(), false)
	r.Register(KindPDFText, NewPDFText(), false)
	r.Register(KindImage, NewTesseract(cfg.TesseractLangs), false)

	if cfg.OpenAIAPIKey != "" {
		vision := NewVision(cfg.OpenAIAPIKey, cfg.VisionModel)
		r.Register(KindPDFScanned, NewScannedPDF(vision), true)
	} else {
		slog.Warn("no OpenAI API key configured, scanned PDFs will be rejected")
	}
	return r
}
