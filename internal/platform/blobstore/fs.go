package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FSStore keeps each blob as two files under Dir: the content and a JSON
// metadata sidecar.
type FSStore struct {
	dir     string
	maxSize int64
}

func NewFSStore(dir string, maxSize int64) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{dir: dir, maxSize: maxSize}, nil
}

func (s *FSStore) Put(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := readValidated(meta, content, s.maxSize)
	if err != nil {
		return nil, err
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeAtomic(s.contentPath(meta.Ref), data); err != nil {
		return nil, err
	}
	if err := writeAtomic(s.metaPath(meta.Ref), sidecar); err != nil {
		_ = os.Remove(s.contentPath(meta.Ref))
		return nil, err
	}
	return &meta, nil
}

func (s *FSStore) Open(_ context.Context, ref string) (io.ReadCloser, *Metadata, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, nil, ErrBlobNotFound
	}

	raw, err := os.ReadFile(s.metaPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}

	f, err := os.Open(s.contentPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, &meta, nil
}

func (s *FSStore) Delete(_ context.Context, ref string) error {
	if _, err := uuid.Parse(ref); err != nil {
		return ErrBlobNotFound
	}
	err := os.Remove(s.contentPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("remove blob: %w", err)
	}
	_ = os.Remove(s.metaPath(ref))
	return nil
}

func (s *FSStore) contentPath(ref string) string { return filepath.Join(s.dir, ref+".bin") }
func (s *FSStore) metaPath(ref string) string    { return filepath.Join(s.dir, ref+".json") }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}
