package docqa

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"
)

type UploadPipeline struct {
	Limiter   Admission
	Sessions  Sessions
	Extractor Extractor
	// Accept valida o tipo do documento; nil aceita apenas PDF.
	Accept   func(payload []byte) bool
	Observer Observer
	Logger   *slog.Logger
}

type UploadResult struct {
	SessionID        string
	ExpiresAt        time.Time
	RemainingUploads int
	// Decisions traz as checagens feitas (global e cliente), inclusive a que rejeitou.
	Decisions []domain.Decision
}

// Upload executa o pipeline linear. As duas cotas são checadas antes de qualquer
// trabalho de extração; a global vem primeiro para proteger o recurso compartilhado.
func (p UploadPipeline) Upload(ctx context.Context, clientKey string, payload []byte) (res UploadResult, err error) {
	start := time.Now()
	defer func() { observe(p.Observer, "upload", start, err) }()
	log := loggerOr(p.Logger).With("pipeline", "upload", "client", clientKey)

	global, err := p.Limiter.Check(ctx, domain.GlobalScope(domain.Upload))
	if err != nil {
		log.Error("global upload check failed", "error", err)
		return res, admissionError(err)
	}
	res.Decisions = append(res.Decisions, global)
	if !global.Admitted {
		log.Info("upload rejected", "scope", global.Scope.Name())
		return res, ErrGlobalUploadLimitExceeded
	}

	client, err := p.Limiter.Check(ctx, domain.ClientScope(domain.Upload, clientKey))
	if err != nil {
		log.Error("client upload check failed", "error", err)
		return res, admissionError(err)
	}
	res.Decisions = append(res.Decisions, client)
	res.RemainingUploads = client.Remaining
	if !client.Admitted {
		log.Info("upload rejected", "scope", client.Scope.Name())
		return res, clientUploadLimit(client.Limit, client.Window)
	}

	if len(payload) == 0 {
		return res, ErrInvalidRequest.Wrap("PDF file is required", nil)
	}
	accept := p.Accept
	if accept == nil {
		accept = IsPDF
	}
	if !accept(payload) {
		return res, ErrInvalidRequest.Wrap("Only PDF files are allowed", nil)
	}

	text, err := p.Extractor.Extract(ctx, payload)
	if err != nil {
		log.Warn("extraction failed", "bytes", len(payload), "error", err)
		return res, ErrExtractionFailed.Wrap(diagnostic(err, ErrExtractionFailed.Message), err)
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("extraction produced no text", "bytes", len(payload))
		return res, ErrExtractionFailed.Wrap("No extractable text found in the document.", nil)
	}

	sess, err := p.Sessions.Create(ctx, text)
	if err != nil {
		log.Error("session create failed", "error", err)
		return res, ErrStoreUnavailable.Wrap("", err)
	}

	res.SessionID = sess.ID
	res.ExpiresAt = sess.ExpiresAt
	log.Info("upload accepted", "session", sess.ID, "chars", len([]rune(sess.Text)))
	return res, nil
}

var pdfMagic = []byte("%PDF-")

// IsPDF procura o cabeçalho %PDF- no primeiro KiB, como os leitores de PDF fazem.
func IsPDF(payload []byte) bool {
	head := payload
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, pdfMagic)
}
