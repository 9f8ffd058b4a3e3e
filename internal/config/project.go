package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectDir picks the directory served as DocumentRoot. A binary built next
// to index.html serves its own directory; otherwise (go run, installed
// binaries) the working directory is used.
func ProjectDir() (string, error) {
	exe, err := os.Executable()
	if err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		if dir, ok := projectDirFrom(filepath.Dir(exe)); ok {
			return dir, nil
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

func projectDirFrom(dir string) (string, bool) {
	info, err := os.Stat(filepath.Join(dir, IndexFileName))
	if err != nil || info.IsDir() {
		return "", false
	}
	return dir, true
}
