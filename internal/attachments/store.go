package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"escrowline/internal/config"
)

const refPrefix = "sha256:"

var (
	ErrNotFound   = errors.New("attachment not found")
	ErrInvalidRef = errors.New("invalid attachment ref")
)

// Store keeps milestone submission files by content hash. The engine only
// ever sees the returned reference.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// Open builds the store selected by cfg.Driver, or nil for "none".
func Open(ctx context.Context, cfg config.AttachmentsConfig) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "file":
		return NewFileStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	}
	return nil, fmt.Errorf("unknown attachments driver %q", cfg.Driver)
}

func contentRef(data []byte) (ref, hexHash string) {
	sum := sha256.Sum256(data)
	hexHash = hex.EncodeToString(sum[:])
	return refPrefix + hexHash, hexHash
}

// parseRef validates "sha256:<64 hex>" and returns the hex part.
func parseRef(ref string) (string, error) {
	raw, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || len(raw) != sha256.Size*2 {
		return "", fmt.Errorf("%w %q", ErrInvalidRef, ref)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidRef, ref)
	}
	return raw, nil
}

// FileStore is a filesystem-backed Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure attachment dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(hexHash string) string {
	return filepath.Join(s.baseDir, hexHash+".blob")
}

func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, hexHash := contentRef(data)
	path := s.path(hexHash)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return ref, nil
}

func (s *FileStore) Get(ctx context.Context, ref string) ([]byte, error) {
	hexHash, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.path(hexHash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FileStore) Exists(ctx context.Context, ref string) (bool, error) {
	hexHash, err := parseRef(ref)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err = os.Stat(s.path(hexHash))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
