package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Mubo-H/inventory-api/internal/model"
)

// File permissions for the collection file and its directory.
const (
	dataFileMode = 0o644
	dataDirMode  = 0o755
)

// FileBackend implements Backend on top of a single JSON file.
type FileBackend struct {
	path   string
	logger *zap.Logger
}

// NewFileBackend creates a FileBackend storing the collection at path.
func NewFileBackend(path string, logger *zap.Logger) *FileBackend {
	return &FileBackend{
		path:   path,
		logger: logger,
	}
}

// Path returns the collection file location.
func (b *FileBackend) Path() string {
	return b.path
}

// ReadAll loads the collection file. Missing, empty, null and syntactically
// broken files read as an empty collection. Well-formed JSON that does not
// fit the item list is returned as an error, so the next write cannot
// replace records this process failed to decode.
func (b *FileBackend) ReadAll(ctx context.Context) ([]model.Item, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("read items: %w", ctx.Err())
	default:
	}

	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Item{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}

	if len(data) == 0 {
		return []model.Item{}, nil
	}

	var items []model.Item
	if err := json.Unmarshal(data, &items); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			b.logger.Warn("data file is not valid JSON, using empty collection",
				zap.String("path", b.path),
				zap.Error(err),
			)
			return []model.Item{}, nil
		}
		return nil, fmt.Errorf("decode %s: %w", b.path, err)
	}

	if items == nil {
		items = []model.Item{}
	}

	return items, nil
}

// WriteAll replaces the collection file. The data is written to a temporary
// file in the same directory and renamed over the target.
func (b *FileBackend) WriteAll(ctx context.Context, items []model.Item) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("write items: %w", ctx.Err())
	default:
	}

	if items == nil {
		items = []model.Item{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, dataDirMode); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, dataFileMode); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", b.path, err)
	}

	b.logger.Debug("items written", zap.String("path", b.path), zap.Int("count", len(items)))

	return nil
}
