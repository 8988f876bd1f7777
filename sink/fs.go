package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/gammadia/batcher/internal/retry"
)

// FS is the storage a batch is written to. Paths are slash-separated and
// relative to the root of the FS.
type FS interface {
	HostPath(p string) string
	MkDir(p string) error
	// WriteFile replaces p with the bytes produced by write. Readers see either
	// the previous content or the complete new one, never a partial file.
	WriteFile(ctx context.Context, p string, perm os.FileMode, write func(io.Writer) error) error
	ReadFile(p string) ([]byte, error)
	List(p string) ([]string, error)
	Delete(p string) error
	Scope(p string) FS
}

// Dir is an FS rooted at a local directory.
type Dir struct {
	root string

	// Attempts bounds how many times the final rename of a write is tried
	Attempts int
	// Delay is the backoff before the second rename attempt
	Delay time.Duration
}

// Dir implements FS
var _ FS = (*Dir)(nil)

func NewDir(root string) *Dir {
	return &Dir{
		root:     path.Clean(root),
		Attempts: 3,
		Delay:    retry.DefaultDelay,
	}
}

func (d *Dir) HostPath(p string) string {
	return path.Join(d.root, p)
}

func (d *Dir) MkDir(p string) error {
	return os.MkdirAll(d.HostPath(p), 0755)
}

func (d *Dir) WriteFile(ctx context.Context, p string, perm os.FileMode, write func(io.Writer) error) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}

	target := d.HostPath(p)
	tmp, err := os.CreateTemp(path.Dir(target), "."+path.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	// Whatever happens past this point, panics included, the temp file is
	// either renamed over the target or removed.
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod %s: %w", p, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", p, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p, err)
	}

	attempts := max(d.Attempts, 1)
	if err = retry.Do(ctx, attempts, d.Delay, func() error {
		err := os.Rename(tmp.Name(), target)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return retry.Permanent(err)
		}
		return err
	}); err != nil {
		return fmt.Errorf("rename %s: %w", p, err)
	}
	committed = true
	return nil
}

func (d *Dir) ReadFile(p string) ([]byte, error) {
	return os.ReadFile(d.HostPath(p))
}

// List returns the names of the entries of directory p, sorted.
func (d *Dir) List(p string) ([]string, error) {
	entries, err := os.ReadDir(d.HostPath(p))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return names, nil
}

func (d *Dir) Delete(p string) error {
	return os.RemoveAll(d.HostPath(p))
}

func (d *Dir) Scope(p string) FS {
	return &ScopedFS{Parent: d, Prefix: p}
}

// ScopedFS exposes the subtree Prefix of its parent.
type ScopedFS struct {
	Parent FS
	Prefix string
}

// ScopedFS implements FS
var _ FS = (*ScopedFS)(nil)

func (f *ScopedFS) HostPath(p string) string {
	return f.Parent.HostPath(path.Join(f.Prefix, p))
}

func (f *ScopedFS) MkDir(p string) error {
	return f.Parent.MkDir(path.Join(f.Prefix, p))
}

func (f *ScopedFS) WriteFile(ctx context.Context, p string, perm os.FileMode, write func(io.Writer) error) error {
	return f.Parent.WriteFile(ctx, path.Join(f.Prefix, p), perm, write)
}

func (f *ScopedFS) ReadFile(p string) ([]byte, error) {
	return f.Parent.ReadFile(path.Join(f.Prefix, p))
}

func (f *ScopedFS) List(p string) ([]string, error) {
	return f.Parent.List(path.Join(f.Prefix, p))
}

func (f *ScopedFS) Delete(p string) error {
	return f.Parent.Delete(path.Join(f.Prefix, p))
}

func (f *ScopedFS) Scope(p string) FS {
	return &ScopedFS{Parent: f.Parent, Prefix: path.Join(f.Prefix, p)}
}
