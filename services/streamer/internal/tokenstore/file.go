// services/streamer/internal/tokenstore/file.go
package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/logger"
)

// FileStore keeps the token as a single JSON object in a file.
type FileStore struct {
	path string
	log  *logger.Logger
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string, log *logger.Logger) *FileStore {
	return &FileStore{path: path, log: log.Named("token-file")}
}

// Load reads and decodes the token file.
func (s *FileStore) Load(_ context.Context) (*TokenState, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tokenstore: read %q: %w", s.path, err)
	}
	var st TokenState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("tokenstore: decode %q: %w", s.path, err)
	}
	return &st, nil
}

// Save writes the token to a temp file and renames it over path.
func (s *FileStore) Save(_ context.Context, st *TokenState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("tokenstore: encode: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("tokenstore: write %q: %w", s.path, err)
	}
	s.log.Debug("token cached", zap.String("path", s.path))
	return nil
}
