package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Download copies an object to a local file. The file is written under a
// temporary name and renamed into place so readers never see a partial copy.
func Download(ctx context.Context, store ObjectStore, key, dst string) (int64, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = reader.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file for %q: %w", key, err)
	}
	written, copyErr := io.Copy(tmp, reader)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return 0, fmt.Errorf("copy object %q: %w", key, copyErr)
		}
		return 0, fmt.Errorf("close temp file for %q: %w", key, closeErr)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("move object %q into place: %w", key, err)
	}
	return written, nil
}

// Upload stores an in-memory object.
func Upload(ctx context.Context, store ObjectStore, key string, data []byte, contentType string) (ObjectInfo, error) {
	return store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), PutOptions{ContentType: contentType})
}
