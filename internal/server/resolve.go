package server

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/Kush-Singh-26/wasmserve/internal/config"
)

// ErrTraversal is returned for request paths that would leave ContentRoot.
var ErrTraversal = errors.New("path traversal attempt detected")

// Target is where a request path resolves to.
type Target struct {
	// Document is set for "/" and "/index.html", which are served from
	// DocumentRoot instead of ContentRoot.
	Document bool
	// Name is the cleaned, slash-separated name inside the chosen root.
	Name string
	// Path is the absolute filesystem path.
	Path string
}

// Resolver translates request paths into filesystem locations.
type Resolver struct {
	DocumentRoot string
	ContentRoot  string
}

// NewResolver returns the resolver for cfg.
func NewResolver(cfg *config.Config) Resolver {
	return Resolver{DocumentRoot: cfg.ProjectDir, ContentRoot: cfg.ContentRoot}
}

// Resolve maps a decoded URL path to its target. "/" and "/index.html" are the
// root document; everything else is looked up under ContentRoot.
func (r Resolver) Resolve(urlPath string) (Target, error) {
	if urlPath == "" || urlPath == "/" || urlPath == "/"+config.IndexFileName {
		name := "/" + config.IndexFileName
		return Target{
			Document: true,
			Name:     name,
			Path:     filepath.Join(r.DocumentRoot, config.IndexFileName),
		}, nil
	}

	if strings.IndexByte(urlPath, 0) >= 0 {
		return Target{}, ErrTraversal
	}

	// Normalize separators so "..\" is caught on every platform
	slashed := strings.ReplaceAll(urlPath, "\\", "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return Target{}, ErrTraversal
		}
	}

	name := path.Clean("/" + slashed)
	fullPath, err := validatePath(r.ContentRoot, name)
	if err != nil {
		return Target{}, err
	}
	return Target{Name: name, Path: fullPath}, nil
}

// validatePath ensures that the user-provided path is within the base directory
// and prevents path traversal attacks.
func validatePath(baseDir, userPath string) (string, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("invalid base directory: %w", err)
	}

	absUserPath, err := filepath.Abs(filepath.Join(absBase, filepath.FromSlash(userPath)))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	relPath, err := filepath.Rel(absBase, absUserPath)
	if err != nil {
		return "", fmt.Errorf("path validation error: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return "", ErrTraversal
	}

	return absUserPath, nil
}
