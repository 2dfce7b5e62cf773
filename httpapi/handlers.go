package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docqa-gateway/docqa"
	"docqa-gateway/middleware/ratelimit"
	"docqa-gateway/middleware/ratelimit/domain"
)

const (
	uploadField       = "pdf"
	multipartOverhead = 1 << 20
	maxQueryBody      = 64 << 10
	codeTooLarge      = "PAYLOAD_TOO_LARGE"
)

var errTooLarge = errors.New("payload too large")

type uploadResponse struct {
	Success          bool      `json:"success"`
	SessionID        string    `json:"sessionId"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RemainingUploads int       `json:"remainingUploads"`
}

type queryRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

type queryResponse struct {
	Success          bool   `json:"success"`
	Answer           string `json:"answer"`
	RemainingQueries int    `json:"remainingQueries"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.readUpload(w, r)
	if errors.Is(err, errTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: "File too large. Max " + formatMiB(h.maxUpload) + ".",
			Code:  codeTooLarge,
		})
		return
	}
	if err != nil {
		h.writeError(w, docqa.ErrInvalidRequest.Wrap("Invalid multipart body", err), nil)
		return
	}

	res, err := h.upload.Upload(r.Context(), ratelimit.ClientKey(r.Context()), payload)
	var last *domain.Decision
	if n := len(res.Decisions); n > 0 {
		last = &res.Decisions[n-1]
	}
	if err != nil {
		h.writeError(w, err, last)
		return
	}
	if last != nil {
		ratelimit.WriteDecisionHeaders(w, *last, h.now())
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:          true,
		SessionID:        res.SessionID,
		ExpiresAt:        res.ExpiresAt,
		RemainingUploads: res.RemainingUploads,
	})
}

// readUpload lê o campo "pdf". Campo ausente ou corpo não-multipart devolvem payload nil,
// e o pipeline decide (depois das cotas) que o arquivo é obrigatório.
func (h *handlers) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe), strings.Contains(err.Error(), "request body too large"):
			return nil, errTooLarge
		case errors.Is(err, http.ErrNotMultipart):
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, _, err := r.FormFile(uploadField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	payload, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > h.maxUpload {
		return nil, errTooLarge
	}
	return payload, nil
}

func (h *handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBody)
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, docqa.ErrInvalidRequest.Wrap("Invalid JSON body", err), nil)
		return
	}

	res, err := h.query.Query(r.Context(), ratelimit.ClientKey(r.Context()), req.SessionID, req.Question)
	var dec *domain.Decision
	if res.Decision.Limit > 0 {
		dec = &res.Decision
	}
	if err != nil {
		h.writeError(w, err, dec)
		return
	}
	if dec != nil {
		ratelimit.WriteDecisionHeaders(w, *dec, h.now())
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Success:          true,
		Answer:           res.Answer,
		RemainingQueries: res.RemainingQueries,
	})
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusOK, map[string]domain.Counters{})
		return
	}
	out, err := h.stats.ByScope(r.Context())
	if err != nil {
		h.log.Error("stats read failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: docqa.ErrStoreUnavailable.Message,
			Code:  string(docqa.CodeStoreUnavailable),
		})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// writeError traduz o erro do pipeline. dec, quando presente, é a checagem que decidiu
// a requisição e vira headers X-RateLimit-* (e Retry-After se rejeitou).
func (h *handlers) writeError(w http.ResponseWriter, err error, dec *domain.Decision) {
	var e *docqa.Error
	if !errors.As(err, &e) {
		h.log.Error("unexpected pipeline error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: docqa.ErrCompletionFailed.Message})
		return
	}
	if dec != nil {
		ratelimit.WriteDecisionHeaders(w, *dec, h.now())
	}
	writeJSON(w, StatusFor(e), errorResponse{Error: e.Error(), Code: string(e.Code)})
}

// StatusFor mapeia Kind/Code para o status HTTP.
func StatusFor(e *docqa.Error) int {
	switch e.Kind {
	case docqa.KindAdmission:
		return http.StatusTooManyRequests
	case docqa.KindValidation:
		return http.StatusBadRequest
	case docqa.KindNotFound:
		return http.StatusNotFound
	}
	if e.Code == docqa.CodeStoreUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func formatMiB(n int64) string {
	if n%(1<<20) == 0 {
		return strconv.FormatInt(n>>20, 10) + "MB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
