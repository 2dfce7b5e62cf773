package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	// sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteDecisionHeaders escreve X-RateLimit-Limit/Remaining/Reset (unix seconds) de uma
// checagem de janela deslizante e, se rejeitada, Retry-After arredondado para cima.
func WriteDecisionHeaders(w http.ResponseWriter, dec domain.Decision, now time.Time) {
	h := w.Header()
	h.Set("X-RateLimit-Scope", dec.Scope.Name())
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	if !dec.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
	}
	if !dec.Admitted {
		h.Set("Retry-After", formatSeconds(dec.RetryAfter(now)))
	}
}

// formatSeconds arredonda para cima: Retry-After nunca promete antes da hora.
func formatSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return formatInt(int(math.Ceil(d.Seconds())))
}

const (
	CodeBurstLimitExceeded = "BURST_LIMIT_EXCEEDED"
	CodeServerBusy         = "SERVER_BUSY"
)

// writeReject usa o mesmo corpo de erro da API ({"error","code"}).
func writeReject(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}{msg, code})
}
