package docqa

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind separa o que foi "rejeitado explicitamente" do que "não pôde ser processado".
type Kind int

const (
	KindAdmission Kind = iota + 1
	KindValidation
	KindNotFound
	KindUpstream
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindAdmission:
		return "admission"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Retryable diz se repetir a mesma requisição faz sentido sem mudar nada.
func (k Kind) Retryable() bool { return k == KindUpstream }

type Code string

const (
	CodeGlobalUploadLimitExceeded Code = "GLOBAL_UPLOAD_LIMIT_EXCEEDED"
	CodeClientUploadLimitExceeded Code = "CLIENT_UPLOAD_LIMIT_EXCEEDED"
	CodeClientQueryLimitExceeded  Code = "CLIENT_QUERY_LIMIT_EXCEEDED"
	CodeInvalidRequest            Code = "INVALID_REQUEST"
	CodeSessionExpiredOrInvalid   Code = "SESSION_EXPIRED_OR_INVALID"
	CodeExtractionFailed          Code = "EXTRACTION_FAILED"
	CodeCompletionFailed          Code = "COMPLETION_FAILED"
	CodeStoreUnavailable          Code = "STORE_UNAVAILABLE"
	CodeInternal                  Code = "INTERNAL_ERROR"
)

// Error é o erro devolvido pelos pipelines. Message é segura para o cliente.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Message == "" {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is compara pelo código, então errors.Is(err, ErrClientQueryLimitExceeded) funciona
// com qualquer *Error do mesmo código (mensagem e causa podem variar).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t.Code == e.Code
}

// Wrap devolve uma cópia com a causa err e, se msg não for vazia, outra mensagem.
func (e *Error) Wrap(msg string, err error) *Error {
	out := *e
	if msg != "" {
		out.Message = msg
	}
	out.Err = err
	return &out
}

var (
	ErrGlobalUploadLimitExceeded = &Error{Kind: KindAdmission, Code: CodeGlobalUploadLimitExceeded,
		Message: "Daily upload capacity reached for the service. Try again later."}
	ErrClientUploadLimitExceeded = &Error{Kind: KindAdmission, Code: CodeClientUploadLimitExceeded,
		Message: "Only 1 PDF upload allowed per day."}
	ErrClientQueryLimitExceeded = &Error{Kind: KindAdmission, Code: CodeClientQueryLimitExceeded,
		Message: "Daily query limit reached: Max 5 questions per day."}
	ErrInvalidRequest = &Error{Kind: KindValidation, Code: CodeInvalidRequest,
		Message: "Invalid request."}
	ErrSessionExpiredOrInvalid = &Error{Kind: KindNotFound, Code: CodeSessionExpiredOrInvalid,
		Message: "Session expired or invalid. Please upload the PDF again."}
	ErrExtractionFailed = &Error{Kind: KindUpstream, Code: CodeExtractionFailed,
		Message: "Could not extract text from the document."}
	ErrCompletionFailed = &Error{Kind: KindUpstream, Code: CodeCompletionFailed,
		Message: "Server error"}
	ErrStoreUnavailable = &Error{Kind: KindUpstream, Code: CodeStoreUnavailable,
		Message: "Service temporarily unavailable."}
	// ErrInternal cobre configuração inválida (ex: escopo sem política); não adianta repetir.
	ErrInternal = &Error{Kind: KindInternal, Code: CodeInternal,
		Message: "Server error"}
)

// clientUploadLimit e clientQueryLimit montam a mensagem a partir da política em vigor
// (POLICY_FILE pode mudar limite e janela).
func clientUploadLimit(limit int, window time.Duration) *Error {
	msg := fmt.Sprintf("Only %d PDF %s allowed per %s.", limit, plural(limit, "upload"), per(window))
	return ErrClientUploadLimitExceeded.Wrap(msg, nil)
}

func clientQueryLimit(limit int, window time.Duration) *Error {
	prefix := "Query"
	if window == 24*time.Hour {
		prefix = "Daily query"
	}
	msg := fmt.Sprintf("%s limit reached: Max %d %s per %s.", prefix, limit, plural(limit, "question"), per(window))
	return ErrClientQueryLimitExceeded.Wrap(msg, nil)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func per(window time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case window <= 0 || window == day:
		return "day"
	case window%day == 0:
		return fmt.Sprintf("%d days", window/day)
	case window%time.Hour == 0:
		return fmt.Sprintf("%d hours", window/time.Hour)
	default:
		return window.String()
	}
}

const maxDiagnostic = 300

// diagnostic reduz a mensagem de um erro de upstream a algo que pode ir ao cliente:
// primeira linha, sem espaços nas pontas, no máximo maxDiagnostic caracteres.
func diagnostic(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	msg, _, _ := strings.Cut(strings.TrimSpace(err.Error()), "\n")
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return fallback
	}
	if utf8.RuneCountInString(msg) > maxDiagnostic {
		msg = string([]rune(msg)[:maxDiagnostic]) + "..."
	}
	return msg
}

// KindOf devolve o Kind de um erro dos pipelines (0 se não for *Error).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
