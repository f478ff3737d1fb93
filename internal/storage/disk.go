package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DiskStore keeps proofs under a local directory.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) path(key string) (string, error) {
	path := filepath.Join(s.root, filepath.Clean("/"+key))
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return path, nil
}

func (s *DiskStore) Put(_ context.Context, key, _ string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

func (s *DiskStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *DiskStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrObjectNotFound
	}
	if err != nil {
		return nil, "", err
	}

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, "", err
	}
	return f, mt.String(), nil
}
