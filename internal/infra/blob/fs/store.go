// Package fs stores blobs as files under a root directory with a YAML
// sidecar holding content type, etag and metadata.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"countries/internal/blob/core"
)

const sidecarSuffix = ".meta.yaml"

// Store is a filesystem backed core.Store.
type Store struct {
	root string
}

// New creates root when missing. An empty root means ./blobs.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./blobs"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root is the absolute directory holding the blobs.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) (string, string, error) {
	clean, err := core.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	if strings.HasSuffix(clean, sidecarSuffix) {
		return "", "", fmt.Errorf("blob key %q uses reserved suffix %s", key, sidecarSuffix)
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	clean, p, err := s.path(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(p); err == nil {
		return core.Info{}, fmt.Errorf("%s: %w", clean, core.ErrExists)
	} else if !errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return core.Info{}, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return core.Info{}, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", clean, err)
	}
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return core.Info{}, fmt.Errorf("commit blob %s: %w", clean, err)
	}
	info := core.Info{
		Key:          clean,
		Size:         n,
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(h.Sum(nil)),
		Metadata:     opts.Metadata,
		LastModified: time.Now().UTC(),
	}
	raw, err := yaml.Marshal(info)
	if err != nil {
		return core.Info{}, err
	}
	if err := os.WriteFile(p+sidecarSuffix, raw, 0o644); err != nil {
		return core.Info{}, fmt.Errorf("write blob metadata: %w", err)
	}
	return info, nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	clean, p, err := s.path(key)
	if err != nil {
		return core.Info{}, err
	}
	return s.info(clean, p)
}

func (s *Store) info(key, p string) (core.Info, error) {
	st, err := os.Stat(p)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, err
	}
	info := core.Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}
	if raw, err := os.ReadFile(p + sidecarSuffix); err == nil {
		if err := yaml.Unmarshal(raw, &info); err != nil {
			return core.Info{}, fmt.Errorf("decode blob metadata %s: %w", key, err)
		}
		info.Key, info.Size = key, st.Size()
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	_, p, _ := s.path(key)
	f, err := os.Open(p)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, f, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	_, p, err := s.path(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(p)
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = os.Remove(p + sidecarSuffix)
	return true, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	err := filepath.WalkDir(s.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, sidecarSuffix) || strings.HasPrefix(name, ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.info(key, p)
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// URL returns a file:// link; ttl is ignored.
func (s *Store) URL(ctx context.Context, key string, _ time.Duration) (string, error) {
	if _, err := s.Head(ctx, key); err != nil {
		return "", err
	}
	_, p, _ := s.path(key)
	return "file://" + filepath.ToSlash(p), nil
}
