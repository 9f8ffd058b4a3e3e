// Package fsutil provides the read-only filesystems the server serves from
// and a cheap change fingerprint over them.
package fsutil

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// NewRootFs returns a read-only view of dir. Names resolve relative to dir
// and cannot escape it.
func NewRootFs(dir string) afero.Fs {
	return afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// Fingerprint generates a deterministic BLAKE3 hash based on file metadata
// (path, size, mtime) of every file under roots. Missing roots hash like
// empty ones, so a build output that does not exist yet is not an error.
func Fingerprint(fsys afero.Fs, roots ...string) (string, error) {
	h := blake3.New()
	for _, root := range roots {
		if err := hashTree(h, fsys, root); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashTree(h *blake3.Hasher, fsys afero.Fs, root string) error {
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if _, err := fmt.Fprintf(h, "%s:%d:%d;", path, info.Size(), info.ModTime().UnixNano()); err != nil {
			return fmt.Errorf("failed to write to hash: %w", err)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
