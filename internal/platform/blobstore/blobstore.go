// Package blobstore stores patient photos and clinical images. Objects are
// addressed by key; the MinIO backend is used in deployments and the
// in-memory backend in development and tests.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/equivet/equivet/internal/platform/apperr"
)

var (
	ErrNotFound           = errors.New("object not found")
	ErrFileTooLarge       = apperr.Invalid("image exceeds the 5 MiB limit")
	ErrInvalidContentType = apperr.Invalid("image must be JPEG, PNG or WebP")
	ErrInvalidKey         = errors.New("invalid object key")
)

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore is the contract both backends satisfy.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, content io.Reader, size int64) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

// ValidKey rejects empty keys, absolute keys and keys that climb out of the
// bucket with "..".
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

type storedObject struct {
	meta    Object
	content []byte
}

// InMemoryBlobStore is a thread-safe BlobStore backed by a map.
type InMemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{objects: make(map[string]*storedObject)}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key, contentType string, content io.Reader, size int64) (*Object, error) {
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("content length %d does not match declared size %d", len(data), size)
	}

	sum := sha256.Sum256(data)
	meta := Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.objects[key] = &storedObject{meta: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	meta := obj.meta
	return io.NopCloser(bytes.NewReader(obj.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// Len reports how many objects are stored.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
