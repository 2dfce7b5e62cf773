package docqa

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"
	"docqa-gateway/session"
)

// Admission é o limiter de janela deslizante (application.Service).
type Admission interface {
	Check(ctx context.Context, scope domain.Scope) (domain.Decision, error)
}

// Sessions é o session store (session.Store).
type Sessions interface {
	Create(ctx context.Context, text string) (session.Session, error)
	Get(ctx context.Context, id string) (string, error)
}

// Extractor transforma os bytes do documento em texto puro.
type Extractor interface {
	Extract(ctx context.Context, payload []byte) (string, error)
}

// Completer responde uma pergunta usando apenas o texto fornecido.
type Completer interface {
	Complete(ctx context.Context, corpus, question string) (string, error)
}

// Observer recebe o resultado de cada execução (métricas). Opcional.
type Observer interface {
	ObservePipeline(pipeline, result string, elapsed time.Duration)
}

const resultOK = "ok"

func resultOf(err error) string {
	if err == nil {
		return resultOK
	}
	var e *Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return "error"
}

func observe(o Observer, pipeline string, start time.Time, err error) {
	if o == nil {
		return
	}
	o.ObservePipeline(pipeline, resultOf(err), time.Since(start))
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// admissionError traduz a falha do limiter: nunca vira "admitido" nem "rejeitado".
// Só queda do store é 503; o resto (política ausente ou inválida) é erro interno.
func admissionError(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return ErrStoreUnavailable.Wrap("", err)
	}
	return ErrInternal.Wrap("", err)
}
