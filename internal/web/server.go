package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/shell"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates the HTTP server for the browser shell.
func NewServer(sh *shell.Shell, log logrus.FieldLogger, version, bind string, port int) (*http.Server, error) {
	// Strip the "templates/" and "static/" prefixes
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		shell:    sh,
		renderer: NewRenderer(templateSub, version, log),
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(routes(h, staticSub)),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func routes(h *Handlers, static fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.HandleEditor)
	mux.HandleFunc("GET /documents", h.HandleList)
	mux.HandleFunc("POST /documents", h.HandleNew)
	mux.HandleFunc("POST /documents/open", h.HandleOpen)
	mux.HandleFunc("GET /documents/{id}", h.HandleText)
	mux.HandleFunc("GET /documents/{id}/preview", h.HandlePreview)
	mux.HandleFunc("PUT /documents/{id}/content", h.HandleSetText)
	mux.HandleFunc("POST /documents/{id}/content", h.HandleSetText)
	mux.HandleFunc("POST /documents/{id}/activate", h.HandleActivate)
	mux.HandleFunc("POST /documents/{id}/close", h.HandleClose)
	mux.HandleFunc("POST /documents/{id}/rename", h.HandleRename)
	mux.HandleFunc("POST /documents/{id}/language", h.HandleLanguage)
	mux.HandleFunc("POST /documents/{id}/save", h.HandleSave)
	mux.HandleFunc("POST /save-all", h.HandleSaveAll)
	mux.HandleFunc("POST /view", h.HandleView)
	mux.HandleFunc("POST /view/cursor", h.HandleCursor)
	mux.HandleFunc("POST /compare", h.HandleCompare)
	mux.HandleFunc("POST /compare/clear", h.HandleClearCompare)
	mux.HandleFunc("GET /diff", h.HandleDiff)
	mux.HandleFunc("POST /actions/{id}/run", h.HandleRunAction)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	return mux
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func Run(srv *http.Server, log logrus.FieldLogger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.WithField("addr", srv.Addr).Infof("quill running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
