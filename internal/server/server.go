// Package server implements the development server for the WebAssembly build
// output: path translation, static file serving and optional live reload.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/afero"

	"github.com/Kush-Singh-26/wasmserve/internal/config"
	"github.com/Kush-Singh-26/wasmserve/internal/fsutil"
	"github.com/Kush-Singh-26/wasmserve/internal/metrics"
	"github.com/Kush-Singh-26/wasmserve/internal/watch"
)

// Server is one configured development server.
type Server struct {
	cfg       *config.Config
	docFs     afero.Fs
	contentFs afero.Fs
	handler   *Handler
	hub       *ReloadHub // nil unless cfg.Watch
	metrics   *metrics.ServeMetrics
	logger    *slog.Logger
	out       io.Writer

	fpMu        sync.Mutex
	fingerprint string
}

// New creates a server reading from the directories named by cfg.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	return newServer(cfg, fsutil.NewRootFs(cfg.ProjectDir), fsutil.NewRootFs(cfg.ContentRoot), logger)
}

func newServer(cfg *config.Config, docFs, contentFs afero.Fs, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		docFs:     docFs,
		contentFs: contentFs,
		handler:   NewHandler(cfg, docFs, contentFs, logger),
		metrics:   metrics.NewServeMetrics(),
		logger:    logger,
		out:       os.Stdout,
	}
	if cfg.Watch {
		s.hub = NewReloadHub()
	}
	return s
}

// Metrics exposes the request counters.
func (s *Server) Metrics() *metrics.ServeMetrics { return s.metrics }

// Handler returns the complete request pipeline.
func (s *Server) Handler() http.Handler {
	var files http.Handler = s.handler
	if s.cfg.Compress {
		files = gzhttp.GzipHandler(files)
	}

	root := files
	if s.hub != nil {
		// Event streams must bypass compression
		root = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == EventsPath {
				s.hub.ServeHTTP(w, r)
				return
			}
			files.ServeHTTP(w, r)
		})
	}
	return logRequests(root, s.metrics, s.logger, s.cfg.Quiet)
}

// Listen binds the configured address. A busy port is reported, not retried.
func Listen(cfg *config.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", cfg.Addr(), err)
	}
	return ln, nil
}

// Serve handles connections on ln until ctx is cancelled, then shuts down
// gracefully within cfg.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.hub != nil {
		httpServer.RegisterOnShutdown(s.hub.Close)
		if err := s.startWatcher(ctx); err != nil {
			s.logger.Warn("Live reload disabled", "error", err)
		}
	}

	shutdownDone := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancelShutdown()
		shutdownDone <- httpServer.Shutdown(shutdownCtx)
	}()

	err := httpServer.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	if err := <-shutdownDone; err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

// startWatcher reloads connected browsers whenever the build output or the
// root document changes.
func (s *Server) startWatcher(ctx context.Context) error {
	if _, err := s.checkFingerprint(); err != nil {
		return err
	}

	w, err := watch.New([]string{s.cfg.ContentRoot}, []string{s.cfg.IndexFile()}, s.cfg.Debounce, func(ev watch.Event) {
		changed, err := s.checkFingerprint()
		if err != nil {
			s.logger.Warn("Failed to fingerprint build output", "error", err)
			return
		}
		if changed {
			n := s.hub.Broadcast()
			s.logger.Info("Build output changed, reloading", "file", ev.Name, "clients", n)
		}
	})
	if err != nil {
		return err
	}
	w.SetLogger(s.logger)
	go w.Start(ctx)
	return nil
}

// checkFingerprint recomputes the change fingerprint and reports whether it
// differs from the previous one.
func (s *Server) checkFingerprint() (bool, error) {
	roots := []string{"/" + config.IndexFileName}
	if rel, err := filepath.Rel(s.cfg.ProjectDir, s.cfg.ContentRoot); err == nil && !strings.HasPrefix(rel, "..") {
		roots = append(roots, "/"+filepath.ToSlash(rel))
	}

	fp, err := fsutil.Fingerprint(s.docFs, roots...)
	if err != nil {
		return false, err
	}

	s.fpMu.Lock()
	defer s.fpMu.Unlock()
	changed := s.fingerprint != "" && fp != s.fingerprint
	s.fingerprint = fp
	return changed, nil
}

// announce prints the single startup line; the details go to the log.
func (s *Server) announce(addr net.Addr) {
	url := s.cfg.URL()
	if tcp, ok := addr.(*net.TCPAddr); ok && tcp.Port != s.cfg.Port {
		c := *s.cfg
		c.Port = tcp.Port
		url = c.URL()
	}

	_, _ = fmt.Fprintf(s.out, "🌐 Serving on %s\n", color.CyanString(url))

	attrs := []any{"build", s.cfg.Build, "contentRoot", s.cfg.ContentRoot, "documentRoot", s.cfg.ProjectDir}
	if s.cfg.Host == "" || s.cfg.Host == "0.0.0.0" {
		attrs = append(attrs, "localNetwork", true)
	}
	if s.hub != nil {
		attrs = append(attrs, "liveReload", EventsPath)
	}
	s.logger.Info("Server started", attrs...)
}

// Start binds, announces and serves cfg until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	registerMimeTypes(cfg.MimeTypes, logger)

	if info, err := os.Stat(cfg.ContentRoot); err != nil || !info.IsDir() {
		logger.Warn("Content root does not exist yet, build the project first", "dir", cfg.ContentRoot)
	}

	s := New(cfg, logger)
	s.out = out

	ln, err := Listen(cfg)
	if err != nil {
		return err
	}
	s.announce(ln.Addr())

	err = s.Serve(ctx, ln)
	_, _ = fmt.Fprint(out, s.metrics.String())
	return err
}

// Run starts the development server from command-line args.
func Run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	return Start(ctx, cfg, os.Stdout, nil)
}
