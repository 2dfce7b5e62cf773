// Package completion fala com o provedor de chat completion (API compatível com OpenAI,
// por padrão a Groq) e responde perguntas usando só o texto do documento.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://api.groq.com/openai/v1"
	DefaultModel        = "llama-3.3-70b-versatile"
	DefaultMaxTokens    = 1024
	DefaultTemperature  = 0.7
	DefaultTimeout      = 60 * time.Second
	DefaultSystemPrompt = "Answer based only on the provided PDF content."
)

var ErrEmptyResponse = errors.New("completion: empty response")

type Client struct {
	api          *openai.Client
	model        string
	maxTokens    int
	temperature  float32
	systemPrompt string
	limiter      *rate.Limiter
	logger       *slog.Logger
}

type config struct {
	baseURL      string
	model        string
	maxTokens    int
	temperature  float32
	systemPrompt string
	timeout      time.Duration
	httpClient   *http.Client
	rps          float64
	burst        int
	logger       *slog.Logger
}

type Option func(*config)

func WithBaseURL(u string) Option { return func(c *config) { c.baseURL = strings.TrimRight(u, "/") } }

func WithModel(m string) Option { return func(c *config) { c.model = m } }

func WithMaxTokens(n int) Option { return func(c *config) { c.maxTokens = n } }

func WithTemperature(t float32) Option { return func(c *config) { c.temperature = t } }

func WithSystemPrompt(p string) Option { return func(c *config) { c.systemPrompt = p } }

func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// WithHTTPClient substitui o client HTTP (ignora WithTimeout).
func WithHTTPClient(hc *http.Client) Option { return func(c *config) { c.httpClient = hc } }

// WithThrottle limita as chamadas de saída ao provedor; rps <= 0 desliga.
func WithThrottle(rps float64, burst int) Option {
	return func(c *config) { c.rps, c.burst = rps, burst }
}

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

func New(apiKey string, opts ...Option) *Client {
	cfg := config{
		baseURL:      DefaultBaseURL,
		model:        DefaultModel,
		maxTokens:    DefaultMaxTokens,
		temperature:  DefaultTemperature,
		systemPrompt: DefaultSystemPrompt,
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	oc := openai.DefaultConfig(apiKey)
	oc.BaseURL = cfg.baseURL
	if cfg.httpClient != nil {
		oc.HTTPClient = cfg.httpClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}

	c := &Client{
		api:          openai.NewClientWithConfig(oc),
		model:        cfg.model,
		maxTokens:    cfg.maxTokens,
		temperature:  cfg.temperature,
		systemPrompt: cfg.systemPrompt,
		logger:       cfg.logger,
	}
	if cfg.rps > 0 {
		burst := cfg.burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.rps), burst)
	}
	return c
}

// Prompt monta a mensagem do usuário no formato que o modelo espera.
func Prompt(corpus, question string) string {
	return "PDF content:\n" + corpus + "\n\nQuestion: " + question
}

// Complete faz uma única chamada, sem retry. Erros do provedor viram *ProviderError,
// cuja mensagem é a do provedor (segura para repassar ao cliente).
func (c *Client) Complete(ctx context.Context, corpus, question string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("completion throttle: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(corpus, question)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		pe := providerError(err)
		c.logger.Warn("completion request failed", "model", c.model, "status", pe.Status, "error", err)
		return "", pe
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("completion ok", "model", c.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ProviderError carrega a mensagem do provedor e o status HTTP (0 se não houve resposta).
type ProviderError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return e.Message }

func (e *ProviderError) Unwrap() error { return e.Err }

func providerError(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if strings.TrimSpace(msg) == "" {
			msg = err.Error()
		}
		return &ProviderError{Status: apiErr.HTTPStatusCode, Message: msg, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Status: reqErr.HTTPStatusCode, Message: err.Error(), Err: err}
	}
	return &ProviderError{Message: err.Error(), Err: err}
}
