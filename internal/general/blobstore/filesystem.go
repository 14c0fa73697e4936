package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"pet-tracker/internal/ports"
)

var ErrInvalidKey = errors.New("invalid blob key")

// FileStore keeps blobs as files under a root directory and serves them under a base URL.
type FileStore struct {
	root    string
	baseURL string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root, baseURL string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &FileStore{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

var _ ports.BlobStore = (*FileStore)(nil)

// Put writes r to key atomically: readers see either the old blob or the complete new one.
func (s *FileStore) Put(ctx context.Context, key, _ string, r io.Reader) error {
	dst, err := s.pathOf(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

// Delete removes key. A missing blob is not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.pathOf(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// URL returns the public URL of key, or "" for an empty key.
func (s *FileStore) URL(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}

// Handler serves stored blobs; mount it with http.StripPrefix.
func (s *FileStore) Handler() http.Handler {
	return http.FileServer(noDirFS{http.Dir(s.root)})
}

// pathOf maps key to a path under root, rejecting traversal.
func (s *FileStore) pathOf(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// noDirFS hides directory listings.
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
