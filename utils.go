package main

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// logger is the process-wide sugared logger. It discards until InitAppLogger runs.
var logger = zap.NewNop().Sugar()

// AppLogger holds the extended diagnostics switches.
type AppLogger struct {
	logRequests    bool
	logDB          bool
	logWS          bool
	debug          bool
	db             *sqlx.DB
	mu             sync.Mutex
	wsMessageCount int
}

// Global application logger (used by server)
var appLogger *AppLogger

// LogConfig holds logging configuration
type LogConfig struct {
	Dev         bool
	LogRequests bool
	LogDB       bool
	LogWS       bool
	Debug       bool
}

// newZapLogger builds a production logger, or a development one in dev mode.
func newZapLogger(config LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if config.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	if config.Debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

// InitAppLogger installs the global loggers. The returned func flushes and restores the std logger.
func InitAppLogger(config LogConfig) (func(), error) {
	z, err := newZapLogger(config)
	if err != nil {
		return nil, err
	}
	restore := zap.RedirectStdLog(z)
	logger = z.Sugar()
	appLogger = &AppLogger{
		logRequests: config.LogRequests,
		logDB:       config.LogDB,
		logWS:       config.LogWS,
		debug:       config.Debug,
	}
	return func() {
		z.Sync()
		restore()
	}, nil
}

// attachDB gives LogDBState a database to dump.
func (al *AppLogger) attachDB(db *sqlx.DB) {
	al.mu.Lock()
	al.db = db
	al.mu.Unlock()
}

// IsEnabled returns true if any extended logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logDB || al.logWS || al.debug
}

// logError logs an error with context and dumps the database in dev mode
func logError(context string, err error) {
	logger.Errorw("ERROR", "context", context, "error", err)
	LogDBState("error in " + context)
}

// ============================================================================
// HTTP Middleware
// ============================================================================

// statusRecorder captures the status code and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// LoggingHandler wraps http.Handler to log requests/responses.
// WebSocket upgrades need http.Hijacker, so they are logged and passed through directly.
type LoggingHandler struct {
	Handler http.Handler
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" || strings.HasPrefix(r.URL.Path, "/ws/") {
		logger.Infow("request", "method", r.Method, "path", r.URL.Path, "upgrade", "websocket")
		l.Handler.ServeHTTP(w, r)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	l.Handler.ServeHTTP(rec, r)

	logger.Infow("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"bytes", rec.size,
		"latency", time.Since(start),
	)
}

// ============================================================================
// Global helper functions
// ============================================================================

// LogWSMessage logs a WebSocket message using the global logger
func LogWSMessage(direction, client, message string) {
	if appLogger == nil || !appLogger.logWS {
		return
	}
	appLogger.mu.Lock()
	appLogger.wsMessageCount++
	n := appLogger.wsMessageCount
	appLogger.mu.Unlock()

	logger.Infow("websocket", "n", n, "direction", direction, "client", client, "message", truncate(message, 500))
}

// LogDBState logs the database state using the global logger
func LogDBState(context string) {
	if appLogger == nil || !appLogger.logDB {
		return
	}
	appLogger.mu.Lock()
	db := appLogger.db
	appLogger.mu.Unlock()
	if db == nil {
		return
	}
	logger.Info(dumpDB(db, context))
}

// DebugLog logs a debug message using the global logger
func DebugLog(context, format string, args ...any) {
	if appLogger == nil || !appLogger.debug {
		return
	}
	logger.Debugf("["+context+"] "+format, args...)
}
