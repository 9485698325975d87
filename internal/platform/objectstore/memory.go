package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	contentType string
	data        []byte
}

// MemoryStore is a thread-safe Store for development and tests. Its URLs use
// the memory:// scheme and cannot be fetched; Put stands in for the client
// upload.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), now: time.Now}
}

func memoryKey(bucket, key string) string { return bucket + "/" + key }

func (s *MemoryStore) signed(op, bucket, key string, ttl time.Duration) string {
	u := url.URL{Scheme: "memory", Host: bucket, Path: "/" + key}
	q := url.Values{}
	q.Set("op", op)
	q.Set("expires", s.now().Add(ttl).UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *MemoryStore) PresignUpload(_ context.Context, bucket, key, _ string, ttl time.Duration) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("presign put: empty bucket or key")
	}
	return s.signed("put", bucket, key, ttl), nil
}

func (s *MemoryStore) PresignDownload(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("presign get: empty bucket or key")
	}
	return s.signed("get", bucket, key, ttl), nil
}

// Put stores data as if a client had used an upload URL.
func (s *MemoryStore) Put(bucket, key, contentType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[memoryKey(bucket, key)] = memoryObject{contentType: contentType, data: append([]byte(nil), data...)}
}

func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[memoryKey(bucket, key)]; !ok {
		return ErrObjectNotFound
	}
	delete(s.objects, memoryKey(bucket, key))
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[memoryKey(bucket, key)]
	return ok, nil
}
