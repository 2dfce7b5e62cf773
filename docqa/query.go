package docqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"docqa-gateway/middleware/ratelimit/domain"
	"docqa-gateway/session"
)

const DefaultMaxQuestionChars = 250

type QueryPipeline struct {
	Limiter          Admission
	Sessions         Sessions
	Completer        Completer
	MaxQuestionChars int
	Observer         Observer
	Logger           *slog.Logger
}

type QueryResult struct {
	Answer           string
	RemainingQueries int
	Decision         domain.Decision
}

// Query valida a entrada sem tocar em limiter nem store, depois checa a cota antes de
// ler a sessão: um cliente sem cota é rejeitado sem custo.
func (p QueryPipeline) Query(ctx context.Context, clientKey, sessionID, question string) (res QueryResult, err error) {
	start := time.Now()
	defer func() { observe(p.Observer, "query", start, err) }()
	log := loggerOr(p.Logger).With("pipeline", "query", "client", clientKey)

	sessionID = strings.TrimSpace(sessionID)
	question = strings.TrimSpace(question)
	if sessionID == "" {
		return res, ErrInvalidRequest.Wrap("Session ID is required", nil)
	}
	limit := p.MaxQuestionChars
	if limit <= 0 {
		limit = DefaultMaxQuestionChars
	}
	if n := utf8.RuneCountInString(question); n == 0 || n > limit {
		return res, ErrInvalidRequest.Wrap(fmt.Sprintf("Question must be 1-%d characters", limit), nil)
	}

	dec, err := p.Limiter.Check(ctx, domain.ClientScope(domain.Query, clientKey))
	if err != nil {
		log.Error("client query check failed", "error", err)
		return res, admissionError(err)
	}
	res.Decision = dec
	res.RemainingQueries = dec.Remaining
	if !dec.Admitted {
		log.Info("query rejected", "scope", dec.Scope.Name())
		return res, clientQueryLimit(dec.Limit, dec.Window)
	}

	text, err := p.Sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return res, ErrSessionExpiredOrInvalid.Wrap("", err)
	}
	if err != nil {
		log.Error("session lookup failed", "session", sessionID, "error", err)
		return res, ErrStoreUnavailable.Wrap("", err)
	}

	answer, err := p.Completer.Complete(ctx, text, question)
	if err != nil {
		log.Warn("completion failed", "session", sessionID, "error", err)
		return res, ErrCompletionFailed.Wrap(diagnostic(err, ErrCompletionFailed.Message), err)
	}

	res.Answer = strings.TrimSpace(answer)
	log.Info("query answered", "session", sessionID, "remaining", res.RemainingQueries)
	return res, nil
}
