package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger writes one structured line per request. Server errors are
// logged at warn level.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(started)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if requestID := chimiddleware.GetReqID(r.Context()); requestID != "" {
				fields = append(fields, zap.String("request_id", requestID))
			}
			if status >= http.StatusInternalServerError {
				logger.Warn("http request", fields...)
				return
			}
			logger.Info("http request", fields...)
		})
	}
}
