package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"docqa-gateway/middleware/ratelimit/application"
	"docqa-gateway/middleware/ratelimit/domain"
)

// ConcurrencyOptions limita uploads e perguntas em andamento (extração e completion
// seguram a requisição por segundos). Pool nil desliga o limite.
type ConcurrencyOptions struct {
	Pool           domain.SlotPool
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *slog.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	status := opts.RejectStatus
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	slots := application.ConcurrencyService{Pool: opts.Pool, AcquireTimeout: opts.AcquireTimeout}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := slots.Acquire(r.Context())
			if err != nil {
				log.Warn("no free slot", "path", r.URL.Path, "client", ClientKey(r.Context()), "error", err)
				writeReject(w, status, CodeServerBusy, "Server busy. Try again shortly.")
				return
			}
			defer release()
			next.ServeHTTP(w, r)
		})
	}
}
