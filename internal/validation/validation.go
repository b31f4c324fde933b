// Package validation checks submissions before they reach the dispatcher,
// so malformed input is rejected synchronously and never consumes a worker.
package validation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MaxFileSize = 32 << 20 // 32mb
	MaxIDLength = 200
)

var AllowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/tiff":      true,
	"image/bmp":       true,
	"text/plain":      true,
	"text/csv":        true,
	"text/html":       true,
}

var pdfSignature = []byte("%PDF")

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidateSubmission checks the idempotency key and payload of one
// submission. The content type is sniffed from the bytes, not trusted from
// the client header.
func ValidateSubmission(id, filename string, payload []byte, maxSize int64) ValidationErrors {
	var errs ValidationErrors

	if id == "" {
		errs = append(errs, ValidationError{
			Field:   "document_id",
			Message: "is required",
		})
	} else if len(id) > MaxIDLength {
		errs = append(errs, ValidationError{
			Field:   "document_id",
			Message: fmt.Sprintf("exceeds maximum length of %d characters", MaxIDLength),
		})
	}

	if maxSize <= 0 {
		maxSize = MaxFileSize
	}

	if len(payload) == 0 {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s is empty", filename),
		})
		return errs
	}
	if int64(len(payload)) > maxSize {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s exceeds maximum size of %d bytes", filename, maxSize),
		})
		return errs
	}

	contentType := mimetype.Detect(payload).String()
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	if !AllowedMimeTypes[contentType] {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s has unsupported content type: %s", filename, contentType),
		})
		return errs
	}

	// a file claiming to be a PDF without the magic bytes is rejected up
	// front rather than failing later inside an extractor
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") && !bytes.HasPrefix(payload, pdfSignature) {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s is not a valid PDF", filename),
		})
	}

	return errs
}
