package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/logger"
)

// AccessLog logs one line per request once the response is done. Internal
// endpoints log at debug so health probes don't flood the terminal; the
// full record always reaches the log file.
func AccessLog(log *logger.StyledLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			requestSize := max(r.ContentLength, 0)

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", duration.Milliseconds(),
				"size_flow", units.HumanSize(float64(requestSize)) + " -> " + units.HumanSize(float64(wrapped.size)),
				constants.ContextRequestIdKey, wrapped.Header().Get(constants.HeaderXRequestID),
			}
			if strings.HasPrefix(r.URL.Path, "/internal/") {
				log.Debug("Request completed", fields...)
			} else {
				log.Info("Request completed", fields...)
			}

			detailedCtx := context.WithValue(r.Context(), logger.DefaultDetailedCookie, true)
			log.GetUnderlying().LogAttrs(detailedCtx, slog.LevelInfo, "Access log",
				slog.Time("timestamp", start),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", r.URL.RawQuery),
				slog.Int("status", wrapped.status),
				slog.Int64("request_bytes", requestSize),
				slog.Int64("response_bytes", wrapped.size),
				slog.Int64("duration_ms", duration.Milliseconds()),
				slog.String("user_agent", r.UserAgent()),
				slog.String("referer", r.Referer()),
			)
		})
	}
}
