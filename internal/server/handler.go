package server

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"

	"github.com/spf13/afero"

	"github.com/Kush-Singh-26/wasmserve/internal/config"
)

// wasmMimeTypes covers what a .NET WebAssembly build emits beyond the
// standard table.
var wasmMimeTypes = map[string]string{
	".wasm":   "application/wasm",
	".mjs":    "text/javascript; charset=utf-8",
	".dll":    "application/octet-stream",
	".pdb":    "application/octet-stream",
	".dat":    "application/octet-stream",
	".blat":   "application/octet-stream",
	".webcil": "application/octet-stream",
}

// registerMimeTypes installs the WASM defaults followed by overrides.
func registerMimeTypes(overrides map[string]string, logger *slog.Logger) {
	addMimeTypes(wasmMimeTypes, logger)
	addMimeTypes(overrides, logger)
}

func addMimeTypes(types map[string]string, logger *slog.Logger) {
	for ext, typ := range types {
		if err := mime.AddExtensionType(ext, typ); err != nil {
			logger.Warn("Ignoring MIME type", "ext", ext, "type", typ, "error", err)
		}
	}
}

// Handler serves the root document from DocumentRoot and everything else
// from ContentRoot. Both filesystems are rooted, so names are "/"-relative.
type Handler struct {
	cfg      *config.Config
	resolver Resolver
	docFs    afero.Fs
	files    http.Handler
	live     bool // inject the reload client into the root document
	logger   *slog.Logger
}

// NewHandler wires a Handler over the given rooted filesystems.
func NewHandler(cfg *config.Config, docFs, contentFs afero.Fs, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		resolver: NewResolver(cfg),
		docFs:    docFs,
		files:    http.FileServer(afero.NewHttpFs(contentFs).Dir("/")),
		live:     cfg.Watch,
		logger:   logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "405 - Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	for k, v := range h.cfg.Headers {
		w.Header().Set(k, v)
	}

	target, err := h.resolver.Resolve(r.URL.Path)
	if err != nil {
		h.logger.Warn("Rejected request path", "path", r.URL.Path, "error", err)
		http.Error(w, "403 - Forbidden: Invalid path", http.StatusForbidden)
		return
	}

	if target.Document {
		h.serveDocument(w, r, target)
		return
	}
	h.files.ServeHTTP(w, r)
}

// serveDocument serves index.html without http.FileServer's redirect of
// "/index.html" to "/".
func (h *Handler) serveDocument(w http.ResponseWriter, r *http.Request, target Target) {
	f, err := h.docFs.Open(target.Name)
	if err != nil {
		h.fileError(w, target, err)
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			h.logger.Warn("Failed to close root document", "path", target.Path, "error", cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		h.fileError(w, target, err)
		return
	}
	if info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if !h.live {
		http.ServeContent(w, r, config.IndexFileName, info.ModTime(), f)
		return
	}

	page, err := io.ReadAll(f)
	if err != nil {
		h.fileError(w, target, err)
		return
	}
	http.ServeContent(w, r, config.IndexFileName, info.ModTime(), bytes.NewReader(injectReloadScript(page)))
}

func (h *Handler) fileError(w http.ResponseWriter, target Target, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "404 page not found", http.StatusNotFound)
	case errors.Is(err, fs.ErrPermission):
		http.Error(w, "403 - Forbidden", http.StatusForbidden)
	default:
		h.logger.Error("Failed to serve file", "path", target.Path, "error", err)
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
	}
}
