package middleware

import (
	"net/http"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"

	"promarket/internal/app/logger"
)

// Log attaches a request-scoped logger with a request id to the context and
// writes one access log line per request.
func Log(l logger.Logger) func(next http.Handler) http.Handler {
	chain := alice.New(
		hlog.NewHandler(l.Logger),
		hlog.RequestIDHandler("request_id", "X-Request-Id"),
		hlog.MethodHandler("http_method"),
		hlog.URLHandler("url"),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("Request served")
		}),
	)

	return func(next http.Handler) http.Handler {
		return chain.Then(next)
	}
}
