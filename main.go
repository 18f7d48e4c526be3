package main

import (
	"compress/gzip"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func disableCaching(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache")

		next.ServeHTTP(w, r)
	})
}

// shouldCompress determines if a content type should be gzip compressed
func shouldCompress(contentType string) bool {
	compressiblePrefixes := []string{
		"text/",
		"application/json",
	}
	for _, prefix := range compressiblePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to handle conditional gzip compression
type responseWriter struct {
	http.ResponseWriter
	gz         *gzip.Writer
	acceptGzip bool
	headerSent bool
}

// WriteHeader checks content type and sets up compression if appropriate
func (w *responseWriter) WriteHeader(statusCode int) {
	if w.headerSent {
		return
	}
	w.headerSent = true

	contentType := w.Header().Get("Content-Type")

	// Only compress if content type is compressible and client supports gzip
	if w.acceptGzip && contentType != "" && shouldCompress(contentType) && statusCode != http.StatusNoContent {
		w.gz = gzip.NewWriter(w.ResponseWriter)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

// Write writes to gzip writer if it exists, otherwise to original writer
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.headerSent {
		w.WriteHeader(http.StatusOK)
	}

	if w.gz != nil {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Flush flushes both gzip and response writer
func (w *responseWriter) Flush() {
	if w.gz != nil {
		w.gz.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Close closes the gzip writer if it exists
func (w *responseWriter) Close() error {
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// compress adds gzip compression to compressible responses
func compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{
			ResponseWriter: w,
			acceptGzip:     strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"),
		}
		defer wrapped.Close()

		next.ServeHTTP(wrapped, r)
	})
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("whitefire", flag.ContinueOnError)
	flags := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flags.applyTo(fs, &cfg)
	if err := cfg.validate(); err != nil {
		return err
	}

	closeLogger, err := InitAppLogger(cfg.toLogConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogger()

	if appLogger.IsEnabled() {
		logger.Infof("Extended logging enabled")
	}

	content, err := loadContent()
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	db, err := openDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	appLogger.attachDB(db)
	LogDBState("after openDB")

	rng, err := newSource(cfg.Seed)
	if err != nil {
		return err
	}

	model, err := newModel(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("init AI backend: %w", err)
	}
	logger.Infof("AI: %s model=%s", cfg.AIProvider, cfg.AIModel)
	models := newModelPool(model, cfg)

	store := newSQLStore(db, time.Now)
	janitor := startJanitor(store, cfg.SaveRetention, pruneSchedule, time.Now)
	defer janitor.Stop()

	session := NewSession(rng)
	srv := newServer(nil, session, cfg)
	srv.ctrl = NewController(
		newLLMAgent(models, cfg),
		llmValidator{cfg: cfg, timeout: 20 * time.Second},
		store,
		content,
		WithStoryteller(newStoryteller(models, cfg)),
		WithEventChance(cfg.EventChance),
		WithHistoryLimit(cfg.HistoryLimit),
		WithOnChange(srv.broadcastState),
	)

	srv.hub.start()
	defer srv.hub.stop()

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.routes()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Infof("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
