package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"docqa-gateway/middleware/ratelimit/application"
	"docqa-gateway/middleware/ratelimit/domain"
)

// Options configura o burst guard de borda.
//
// Store nil desliga o token bucket, mas o middleware continua resolvendo a chave do
// cliente e gravando no contexto (os pipelines dependem disso).
type Options struct {
	Store               domain.BucketStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Logger              *slog.Logger
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

func (o Options) withDefaults() Options {
	if o.RejectStatus == 0 {
		o.RejectStatus = http.StatusTooManyRequests
	}
	if o.RetryAfter == 0 {
		o.RetryAfter = time.Second
	}
	if o.KeyFn == nil {
		o.KeyFn = DefaultKeyFunc(o.KeyHeader, o.TrustXForwardedFor)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	opts = opts.withDefaults()
	guard := application.BurstService{Store: opts.Store, RetryAfter: opts.RetryAfter}
	info, hasInfo := opts.Store.(rateInfo)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				h := w.Header()
				h.Set("X-RateLimit-Key", client)
				if hasInfo {
					h.Set("X-Burst-RPS", formatFloat(info.RPS()))
					h.Set("X-Burst-Size", formatInt(info.Burst()))
				}
			}

			if dec := guard.Decide(domain.Key(client)); !dec.Allowed {
				opts.Logger.Debug("burst guard rejected request", "client", client, "path", r.URL.Path)
				w.Header().Set("Retry-After", formatSeconds(dec.RetryAfter))
				writeReject(w, opts.RejectStatus, CodeBurstLimitExceeded, "Too many requests. Slow down.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClientKey(r.Context(), client)))
		})
	}
}
