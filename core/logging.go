package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const traceIDHeader = "X-Trace-ID"

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// NewLogger writes JSON entries at level to w, tagged with the process role.
func NewLogger(w io.Writer, role, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(w).Level(lvl).With().
		Str("role", role).
		Timestamp().
		Logger()
	return &Logger{l}
}

// Nop returns a *Logger that discards all output.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// FromContext returns the request-scoped logger stored by RequestLogger.
func FromContext(ctx context.Context) *Logger {
	return &Logger{*log.Ctx(ctx)}
}

// SetupLogging sends log output to both stdout and cfg.LogDir/filename.
// Caller should close the returned io.Closer on shutdown.
func SetupLogging(cfg Config, filename string) (*Logger, io.Closer, error) {
	dir := cfg.LogDir
	if dir == "" {
		dir = "./logs"
	}
	if filename == "" {
		filename = "app.log"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	var stdout io.Writer = os.Stdout
	if cfg.LogPretty {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	mw := zerolog.MultiLevelWriter(stdout, f)
	gin.DefaultWriter = mw
	gin.DefaultErrorWriter = mw

	return NewLogger(mw, "api", cfg.LogLevel), f, nil
}

// RequestLogger attaches a trace-scoped logger to each request and logs its outcome.
func RequestLogger(base *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		l := base.With().Str("trace_id", traceID).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Header(traceIDHeader, traceID)

		start := time.Now()
		c.Next()

		l.Info().
			Str("method", c.Request.Method).
			Str("uri", c.Request.URL.RequestURI()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Int("size", c.Writer.Size()).
			Msg("http request")
	}
}
