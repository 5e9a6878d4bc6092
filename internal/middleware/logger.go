package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger logs every request with slog
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return chimw.RequestLogger(&StructuredLogger{logger: logger})
}

type StructuredLogger struct {
	logger *slog.Logger
}

func (l *StructuredLogger) NewLogEntry(r *http.Request) chimw.LogEntry {
	return &StructuredLogEntry{logger: l.logger, request: r}
}

type StructuredLogEntry struct {
	logger  *slog.Logger
	request *http.Request
}

func (e *StructuredLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.logger.InfoContext(e.request.Context(), "http request",
		"request_id", chimw.GetReqID(e.request.Context()),
		"method", e.request.Method,
		"path", e.request.URL.Path,
		"status", status,
		"bytes", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
		"remote_addr", e.request.RemoteAddr,
	)
}

func (e *StructuredLogEntry) Panic(v interface{}, stack []byte) {
	e.logger.ErrorContext(e.request.Context(), "http request panic",
		"request_id", chimw.GetReqID(e.request.Context()),
		"panic", v,
		"stack", string(stack),
		"method", e.request.Method,
		"path", e.request.URL.Path,
	)
}
