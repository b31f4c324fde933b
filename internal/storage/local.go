package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

type LocalStorage struct {
	baseDir string
	baseURL string
}

func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
		baseURL: baseURL,
	}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read document content: %w", err)
	}

	key := generateKey(filename)
	filePath := filepath.Join(s.baseDir, key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory structure: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	slog.Info("document archived to local storage", "key", key, "size", len(data))

	return &UploadResult{
		Key: key,
		URL: fmt.Sprintf("%s/%s", s.baseURL, key),
	}, nil
}

func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	filePath := filepath.Join(s.baseDir, key)

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("document not found: %s", key)
		}
		return nil, "", fmt.Errorf("failed to stat document: %w", err)
	}
	if info.Size() == 0 {
		return nil, "", fmt.Errorf("document is empty: %s", key)
	}

	mtype, err := mimetype.DetectFile(filePath)
	contentType := "application/octet-stream"
	if err == nil {
		contentType = mtype.String()
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open document: %w", err)
	}

	return file, contentType, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	filePath := filepath.Join(s.baseDir, key)

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	slog.Info("document deleted from local storage", "key", key)
	return nil
}

func generateKey(filename string) string {
	ext := filepath.Ext(filename)
	basename := filepath.Base(filename[:len(filename)-len(ext)])
	if basename == "" || basename == "." {
		basename = "document"
	}

	timestamp := time.Now().Format("2006/01/02")
	uniqueID := uuid.New().String()[:8]

	return fmt.Sprintf("documents/%s/%s_%s%s", timestamp, basename, uniqueID, ext)
}
