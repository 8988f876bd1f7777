package sink

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/samber/lo"
)

// Bundle writes the given files and directories of root to w as a
// zstd-compressed tar archive. Entry names are relative to root. Hidden
// files, which include in-flight temp files, are skipped.
func Bundle(ctx context.Context, root FS, paths []string, w io.Writer) (err error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)
	defer func() {
		if closeErr := tw.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close tar: %w", closeErr)
		}
		if closeErr := zw.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close zstd: %w", closeErr)
		}
	}()

	for _, p := range paths {
		base := root.HostPath(p)
		err := filepath.WalkDir(base, func(file string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if file != base && strings.HasPrefix(entry.Name(), ".") {
				return lo.Ternary(entry.IsDir(), filepath.SkipDir, nil)
			}

			rel, err := filepath.Rel(base, file)
			if err != nil {
				return err
			}
			return addToArchive(tw, file, path.Join(p, filepath.ToSlash(rel)), entry)
		})
		if err != nil {
			return fmt.Errorf("bundle %s: %w", p, err)
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, file, name string, entry fs.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	if entry.IsDir() {
		header.Name += "/"
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
