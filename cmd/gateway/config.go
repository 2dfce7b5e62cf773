package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"docqa-gateway/completion"
	"docqa-gateway/httpapi"
	"docqa-gateway/middleware/ratelimit/domain"
	"docqa-gateway/middleware/ratelimit/infra"
	"docqa-gateway/session"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type config struct {
	listenAddr string
	logLevel   slog.Level

	store         string
	redisAddr     string
	redisPassword string
	redisDB       int
	ratePrefix    string
	policies      domain.Policies
	cleanupEvery  time.Duration

	sessionPrefix   string
	sessionTTL      time.Duration
	sessionMaxChars int

	rateKeyHeader      string
	trustXFF           bool
	burstRPS           float64
	burstSize          int
	burstIdleTTL       time.Duration
	concurrencyMax     int
	concurrencyTimeout time.Duration
	uploadMaxBytes     int64

	completionBaseURL     string
	completionAPIKey      string
	completionModel       string
	completionMaxTokens   int
	completionTemperature float64
	completionRPS         float64
	completionBurst       int
	completionTimeout     time.Duration
	completionPrompt      string

	statsRedis     bool
	statsTTL       time.Duration
	statsSeries    time.Duration
	statsTrackKeys bool
}

const (
	storeRedis  = "redis"
	storeMemory = "memory"
)

// loadEnvFiles carrega .env.local e depois .env; variáveis já definidas ganham.
func loadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":5000")
	cfg.logLevel = parseLevel(os.Getenv("LOG_LEVEL"))

	cfg.store = strings.ToLower(getenvDefault("STORE", storeRedis))
	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.ratePrefix = getenvDefault("RATE_PREFIX", "ratelimit")
	// janitor do store em memória e dos token buckets
	cfg.cleanupEvery = getenvDurationDefault("CLEANUP_EVERY", time.Minute)

	cfg.sessionPrefix = getenvDefault("SESSION_PREFIX", session.DefaultPrefix)
	cfg.sessionTTL = getenvDurationDefault("SESSION_TTL", session.DefaultTTL)
	cfg.sessionMaxChars = getenvIntDefault("SESSION_MAX_CHARS", session.DefaultMaxChars)

	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.burstRPS = getenvFloatDefault("BURST_RPS", 5)
	// IMPORTANTE: com RPS < 1 o burst padrão (10) deixa passar uma rajada grande antes
	// de o guard agir; nesse caso o padrão cai para 1.
	if burst, ok := getenvInt("BURST_SIZE"); ok {
		cfg.burstSize = burst
	} else {
		cfg.burstSize = 10
		if getenvIsSet("BURST_RPS") && cfg.burstRPS > 0 && cfg.burstRPS < 1 {
			cfg.burstSize = 1
		}
	}
	cfg.burstIdleTTL = getenvDurationDefault("BURST_IDLE_TTL", 15*time.Minute)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 32)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)
	cfg.uploadMaxBytes = int64(getenvIntDefault("UPLOAD_MAX_BYTES", httpapi.DefaultMaxUploadBytes))

	cfg.completionBaseURL = getenvDefault("COMPLETION_BASE_URL", completion.DefaultBaseURL)
	cfg.completionAPIKey = getenvDefault("COMPLETION_API_KEY", os.Getenv("GROQ_API_KEY"))
	cfg.completionModel = getenvDefault("COMPLETION_MODEL", completion.DefaultModel)
	cfg.completionMaxTokens = getenvIntDefault("COMPLETION_MAX_TOKENS", completion.DefaultMaxTokens)
	cfg.completionTemperature = getenvFloatDefault("COMPLETION_TEMPERATURE", completion.DefaultTemperature)
	cfg.completionRPS = getenvFloatDefault("COMPLETION_RPS", 2)
	cfg.completionBurst = getenvIntDefault("COMPLETION_BURST", 4)
	cfg.completionTimeout = getenvDurationDefault("COMPLETION_TIMEOUT", completion.DefaultTimeout)
	cfg.completionPrompt = getenvDefault("COMPLETION_SYSTEM_PROMPT", completion.DefaultSystemPrompt)

	cfg.statsRedis = getenvBoolDefault("STATS_REDIS", false)
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", infra.DefaultStatsTTL)
	// STATS_SERIES=0 desliga a série temporal por escopo
	cfg.statsSeries = getenvDurationDefault("STATS_SERIES", infra.DefaultStatsSeries)
	cfg.statsTrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", false)

	policies, err := loadPolicies(os.Getenv("POLICY_FILE"))
	if err != nil {
		return config{}, err
	}
	cfg.policies = policies

	switch cfg.store {
	case storeRedis:
		if strings.TrimSpace(cfg.redisAddr) == "" {
			return config{}, errors.New("REDIS_ADDR is required when STORE=redis")
		}
	case storeMemory:
		if cfg.statsRedis {
			return config{}, errors.New("STATS_REDIS requires STORE=redis")
		}
	default:
		return config{}, fmt.Errorf("STORE must be %q or %q, got %q", storeRedis, storeMemory, cfg.store)
	}
	if cfg.sessionTTL <= 0 {
		return config{}, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.burstRPS < 0 {
		return config{}, errors.New("BURST_RPS must be >= 0")
	}
	if cfg.burstRPS > 0 && cfg.burstSize <= 0 {
		return config{}, errors.New("BURST_SIZE must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.statsTrackKeys && !cfg.statsRedis {
		return config{}, errors.New("STATS_TRACK_KEYS requires STATS_REDIS=true")
	}
	if cfg.statsTTL <= 0 {
		return config{}, errors.New("STATS_TTL must be > 0")
	}
	if cfg.statsSeries < 0 {
		return config{}, errors.New("STATS_SERIES must be >= 0")
	}
	if cfg.cleanupEvery <= 0 {
		return config{}, errors.New("CLEANUP_EVERY must be > 0")
	}
	if cfg.uploadMaxBytes <= 0 {
		return config{}, errors.New("UPLOAD_MAX_BYTES must be > 0")
	}
	return cfg, nil
}

// loadPolicies parte dos padrões e sobrescreve só os campos presentes no YAML:
//
//	client-query:
//	  limit: 10
//	  window: 12h
func loadPolicies(path string) (domain.Policies, error) {
	policies := domain.DefaultPolicies()
	if path == "" {
		return policies, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read POLICY_FILE: %w", err)
	}
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse POLICY_FILE: %w", err)
	}
	for name, node := range doc {
		p, ok := policies[name]
		if !ok {
			return nil, fmt.Errorf("POLICY_FILE: unknown scope %q", name)
		}
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("POLICY_FILE: scope %q: %w", name, err)
		}
		policies[name] = p
	}
	if err := policies.Validate(); err != nil {
		return nil, fmt.Errorf("POLICY_FILE: %w", err)
	}
	return policies, nil
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
