package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidName = errors.New("assets: invalid name")

// FileStore keeps assets in a local directory and hands out public URLs under baseURL.
type FileStore struct {
	basePath string
	baseURL  string
}

func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory assets are written to.
func (s *FileStore) Dir() string { return s.basePath }

// Put writes data under name and returns its public URL. The file appears
// atomically; a reader never sees a partial image.
func (s *FileStore) Put(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.basePath, name)); err != nil {
		return "", err
	}
	return s.baseURL + "/" + url.PathEscape(name), nil
}

// Delete removes name. A missing file is not an error.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// NameOf returns the asset name behind a URL handed out by Put, or "" when
// the URL does not belong to this store.
func (s *FileStore) NameOf(ref string) string {
	rest, ok := strings.CutPrefix(ref, s.baseURL+"/")
	if !ok {
		return ""
	}
	name, err := url.PathUnescape(rest)
	if err != nil || validName(name) != nil {
		return ""
	}
	return name
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
