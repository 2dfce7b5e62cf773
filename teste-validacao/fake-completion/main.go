// Servidor falso compatível com /chat/completions para validar o gateway de ponta a ponta
// sem gastar cota do provedor:
//
//	go run ./teste-validacao/fake-completion
//	COMPLETION_BASE_URL=http://localhost:8081 STORE=memory go run ./cmd/gateway
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

func main() {
	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	// FAIL_EVERY=n faz cada n-ésima chamada responder 429 (testa o repasse da mensagem)
	failEvery, _ := strconv.ParseInt(os.Getenv("FAIL_EVERY"), 10, 64)

	var calls atomic.Int64
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Post("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		if failEvery > 0 && n%failEvery == 0 {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(openai.ErrorResponse{Error: &openai.APIError{
				Message: "Rate limit reached for model " + req.Model,
				Type:    "tokens",
			}})
			return
		}

		question := ""
		if n := len(req.Messages); n > 0 {
			content := req.Messages[n-1].Content
			if i := strings.LastIndex(content, "Question: "); i >= 0 {
				question = content[i+len("Question: "):]
			}
		}
		slog.Info("completion requested", "model", req.Model, "messages", len(req.Messages), "question", question)

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:      "chatcmpl-" + uuid.NewString(),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				FinishReason: openai.FinishReasonStop,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: "Resposta simulada para: " + question,
				},
			}},
		})
	})

	slog.Info("fake completion server listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
