// Package memory is an in-process object store used for local runs and tests.
package memory

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "sync"

    "github.com/feichai0017/plc-program-processor/pkg/storage/errdefs"
)

// ErrNotFound is the backend-independent not-found error.
var ErrNotFound = errdefs.ErrNotFound

type object struct {
    data        []byte
    contentType string
}

// UploadHook may reject an upload before it is stored.
type UploadHook func(key string) error

type Storage struct {
    mu      sync.RWMutex
    objects map[string]object
    hook    UploadHook
    uploads int
}

func New() *Storage {
    return &Storage{objects: make(map[string]object)}
}

// SetUploadHook installs a hook consulted on every upload.
func (s *Storage) SetUploadHook(h UploadHook) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.hook = h
}

func (s *Storage) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
    if err := ctx.Err(); err != nil {
        return "", err
    }

    s.mu.Lock()
    defer s.mu.Unlock()
    s.uploads++
    if s.hook != nil {
        if err := s.hook(key); err != nil {
            return "", fmt.Errorf("failed to store file: %w", err)
        }
    }
    s.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
    return "memory://" + key, nil
}

func (s *Storage) Download(ctx context.Context, key string) ([]byte, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }

    s.mu.RLock()
    defer s.mu.RUnlock()
    obj, ok := s.objects[key]
    if !ok {
        return nil, fmt.Errorf("failed to get file %s: %w", key, ErrNotFound)
    }
    return append([]byte(nil), obj.data...), nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    delete(s.objects, key)
    return nil
}

func (s *Storage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    n := 0
    for k := range s.objects {
        if strings.HasPrefix(k, prefix) {
            delete(s.objects, k)
            n++
        }
    }
    return n, nil
}

// Keys lists stored keys in order.
func (s *Storage) Keys() []string {
    s.mu.RLock()
    defer s.mu.RUnlock()
    keys := make([]string, 0, len(s.objects))
    for k := range s.objects {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    return keys
}

// ContentType returns the stored content type of key.
func (s *Storage) ContentType(key string) string {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.objects[key].contentType
}

// Uploads counts upload attempts, including rejected ones.
func (s *Storage) Uploads() int {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.uploads
}
