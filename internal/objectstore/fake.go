package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"
)

// ErrKeyNotFound is what FakeStore returns for a missing object; the minio
// backend reports the same condition through IsNoSuchKey.
var ErrKeyNotFound = errors.New("object not found")

// FakeStore is an in-memory Store for tests and local development.
type FakeStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
}

func NewFakeStore() *FakeStore {
	return &FakeStore{buckets: make(map[string]map[string][]byte)}
}

func (f *FakeStore) EnsureBucket(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := BucketName(username)
	if _, ok := f.buckets[bucket]; !ok {
		f.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

// BucketExists reports whether EnsureBucket (or a Put) created the user's
// bucket.
func (f *FakeStore) BucketExists(username string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buckets[BucketName(username)]
	return ok
}

func (f *FakeStore) Put(ctx context.Context, username, name string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := BucketName(username)
	if _, ok := f.buckets[bucket]; !ok {
		f.buckets[bucket] = make(map[string][]byte)
	}
	f.buckets[bucket][name] = data
	return nil
}

func (f *FakeStore) Get(ctx context.Context, username, name string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.buckets[BucketName(username)][name]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *FakeStore) Delete(ctx context.Context, username, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.buckets[BucketName(username)], name)
	return nil
}

func (f *FakeStore) List(ctx context.Context, username string) ([]ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objects := f.buckets[BucketName(username)]
	infos := make([]ObjectInfo, 0, len(objects))
	for name, data := range objects {
		infos = append(infos, ObjectInfo{Name: name, SizeBytes: int64(len(data)), LastModified: time.Now()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (f *FakeStore) TotalBytes(ctx context.Context, username string) (int64, error) {
	infos, err := f.List(ctx, username)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, info := range infos {
		total += info.SizeBytes
	}
	return total, nil
}
