package pagecache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists entries as files under a root directory, keyed by the
// cache key (locale + resolved path). It is the default durable backend.
type FileStore struct {
	dir string
}

// NewFileStore creates a durable store rooted at dir. The directory is
// created on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// keyFile maps a cache key to a file path inside the root. Each key segment
// is escaped so keys cannot address files outside the root.
func (f *FileStore) keyFile(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		key = "index"
	}
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("pagecache: unsafe cache key %q", key)
		}
		segments[i] = url.PathEscape(seg)
	}
	return filepath.Join(f.dir, filepath.Join(segments...)+".cache"), nil
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	path, err := f.keyFile(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	entry, err := DecodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Set implements Store. The write goes through a temp file and rename so a
// concurrent reader never observes a partial entry.
func (f *FileStore) Set(_ context.Context, key string, entry *Entry) error {
	path, err := f.keyFile(key)
	if err != nil {
		return err
	}
	data, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Delete implements Store.
func (f *FileStore) Delete(_ context.Context, key string) error {
	path, err := f.keyFile(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
