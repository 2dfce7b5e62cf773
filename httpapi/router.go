// Package httpapi é o adaptador HTTP fino na frente dos pipelines: roteamento chi,
// leitura do multipart/JSON e tradução de docqa.Error em status + corpo JSON.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"docqa-gateway/docqa"
	"docqa-gateway/middleware/ratelimit"
	"docqa-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const DefaultMaxUploadBytes = 10 << 20

type Uploader interface {
	Upload(ctx context.Context, clientKey string, payload []byte) (docqa.UploadResult, error)
}

type Querier interface {
	Query(ctx context.Context, clientKey, sessionID, question string) (docqa.QueryResult, error)
}

type Config struct {
	Upload  Uploader
	Query   Querier
	Stats   domain.StatsReader
	Metrics http.Handler

	// Burst e Concurrency protegem /api/*. Burst.Store nil só resolve a chave do cliente.
	Burst       ratelimit.Options
	Concurrency ratelimit.ConcurrencyOptions

	MaxUploadBytes int64
	Now            func() time.Time
	Logger         *slog.Logger
}

type handlers struct {
	upload    Uploader
	query     Querier
	stats     domain.StatsReader
	maxUpload int64
	now       func() time.Time
	log       *slog.Logger
}

func NewRouter(cfg Config) http.Handler {
	h := &handlers{
		upload:    cfg.Upload,
		query:     cfg.Query,
		stats:     cfg.Stats,
		maxUpload: cfg.MaxUploadBytes,
		now:       cfg.Now,
		log:       cfg.Logger,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = DefaultMaxUploadBytes
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if cfg.Burst.Logger == nil {
		cfg.Burst.Logger = h.log
	}
	if cfg.Concurrency.Logger == nil {
		cfg.Concurrency.Logger = h.log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Get("/stats", h.handleStats)

	r.Route("/api", func(r chi.Router) {
		r.Use(ratelimit.Middleware(cfg.Burst))
		r.Use(ratelimit.ConcurrencyMiddleware(cfg.Concurrency))
		r.Post("/upload", h.handleUpload)
		r.Post("/query", h.handleQuery)
	})
	return r
}

// requestLogger registra uma linha por requisição depois da resposta.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
				"elapsed", time.Since(start))
		})
	}
}
