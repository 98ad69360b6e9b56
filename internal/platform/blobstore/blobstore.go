// Package blobstore keeps uploaded retinal images. Scans reference images by
// an opaque ref returned from Put.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("only PNG and JPEG images are accepted")
	ErrMissingFileName    = errors.New("file name is required")
	ErrEmptyFile          = errors.New("file is empty")
)

// DefaultMaxSize is used when a store is built with a non-positive limit.
const DefaultMaxSize = 10 << 20

// AllowedContentTypes lists the sniffed types a retinal image may have.
var AllowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// Metadata describes a stored blob.
type Metadata struct {
	Ref         string    `json:"ref"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy"`
}

// Store is implemented by every blob backend.
type Store interface {
	Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, *Metadata, error)
	Delete(ctx context.Context, ref string) error
}

// readValidated reads content up to max bytes, checks its sniffed type and
// fills in ref, size, hash and timestamps.
func readValidated(meta Metadata, content io.Reader, max int64) (Metadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	if max <= 0 {
		max = DefaultMaxSize
	}

	data, err := io.ReadAll(io.LimitReader(content, max+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > max {
		return meta, nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return meta, nil, ErrEmptyFile
	}

	sniffed := http.DetectContentType(data)
	if !AllowedContentTypes[sniffed] {
		return meta, nil, ErrInvalidContentType
	}

	h := sha256.Sum256(data)
	meta.Ref = uuid.NewString()
	meta.ContentType = sniffed
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()
	return meta, data, nil
}

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// MemoryStore is a thread-safe, in-memory Store for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
}

func NewMemoryStore(maxSize int64) *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob), maxSize: maxSize}
}

func (s *MemoryStore) Put(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := readValidated(meta, content, s.maxSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.Ref] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Open(_ context.Context, ref string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[ref]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[ref]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, ref)
	return nil
}

// Len reports how many blobs are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
