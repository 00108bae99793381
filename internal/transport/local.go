package transport

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local reads listings and binaries straight off the local filesystem.
// Used for services with empty credentials.
type Local struct{}

// NewLocal returns a filesystem-backed transport.
func NewLocal() *Local {
	return &Local{}
}

// List stats every regular file directly under path.
func (l *Local) List(ctx context.Context, path string) ([]Entry, int, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read dir %s: %w", path, err)
	}

	var entries []Entry
	skipped := 0
	for _, de := range dirents {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			skipped++
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}
	return entries, skipped, nil
}

// ListTree walks path recursively; entry names are relative slash paths.
func (l *Local) ListTree(ctx context.Context, path string) ([]Entry, int, error) {
	var entries []Entry
	skipped := 0
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			skipped++
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			skipped++
			return nil
		}
		entries = append(entries, Entry{
			Name:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, skipped, fmt.Errorf("walk %s: %w", path, err)
	}
	return entries, skipped, nil
}

// Fetch copies src to dst, creating parent directories as needed.
func (l *Local) Fetch(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", dst, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// Close is a no-op for the local transport.
func (l *Local) Close() error {
	return nil
}
