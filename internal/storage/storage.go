// Package storage archives submitted document payloads so that a terminal
// record's source_ref always points at retrievable bytes.
package storage

import (
	"context"
	"io"
)

type Storage interface {
	Upload(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

type UploadResult struct {
	Key string
	URL string
}
