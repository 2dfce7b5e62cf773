package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http nem de Redis.

import (
	"fmt"
	"strings"
	"time"
)

type Key string

type ScopeKind string

const (
	Global    ScopeKind = "global"
	PerClient ScopeKind = "client"
)

type Action string

const (
	Upload Action = "upload"
	Query  Action = "query"
)

// Scope identifica o contador usado em uma checagem de admissão.
//
// ClientKey é o endereço (ou chave) do cliente e é ignorado quando Kind == Global:
// o escopo global é um único contador compartilhado por todos os clientes da ação.
type Scope struct {
	Kind      ScopeKind
	Action    Action
	ClientKey string
}

func GlobalScope(a Action) Scope { return Scope{Kind: Global, Action: a} }

func ClientScope(a Action, clientKey string) Scope {
	return Scope{Kind: PerClient, Action: a, ClientKey: clientKey}
}

// Name é o nome estável do escopo sem a chave do cliente ("global-upload", "client-query").
// Usado para localizar a Policy e como label de métricas/estatísticas.
func (s Scope) Name() string { return string(s.Kind) + "-" + string(s.Action) }

// Key monta a chave do contador no Counter Store: <prefix>:<kind>:<action>[:<clientKey>].
func (s Scope) Key(prefix string) Key {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "ratelimit"
	}
	k := prefix + ":" + string(s.Kind) + ":" + string(s.Action)
	if s.Kind == PerClient {
		k += ":" + s.ClientKey
	}
	return Key(k)
}

func (s Scope) String() string {
	if s.Kind == PerClient {
		return s.Name() + "(" + s.ClientKey + ")"
	}
	return s.Name()
}

// Policy é imutável depois do start do processo.
//
// Granularity é o tamanho de cada sub-bucket da janela deslizante; zero usa Window/1440.
// ChargeRejected controla se uma tentativa rejeitada também consome uma vaga.
type Policy struct {
	Limit          int           `yaml:"limit"`
	Window         time.Duration `yaml:"window"`
	Granularity    time.Duration `yaml:"granularity"`
	ChargeRejected bool          `yaml:"charge_rejected"`
}

const defaultBucketsPerWindow = 1440

func (p Policy) Normalize() Policy {
	if p.Granularity <= 0 && p.Window > 0 {
		p.Granularity = p.Window / defaultBucketsPerWindow
	}
	if p.Granularity < time.Millisecond {
		p.Granularity = time.Millisecond
	}
	if p.Granularity > p.Window && p.Window > 0 {
		p.Granularity = p.Window
	}
	return p
}

func (p Policy) Validate() error {
	if p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0, got %d", ErrInvalidPolicy, p.Limit)
	}
	if p.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be >= 1ms, got %s", ErrInvalidPolicy, p.Window)
	}
	return nil
}

// Policies indexa as políticas pelo Scope.Name().
type Policies map[string]Policy

// DefaultPolicies retorna os limites de produção: 50 uploads globais, 1 upload e 5
// perguntas por cliente, todos em 24h.
func DefaultPolicies() Policies {
	day := 24 * time.Hour
	return Policies{
		GlobalScope(Upload).Name():     {Limit: 50, Window: day, ChargeRejected: true},
		ClientScope(Upload, "").Name(): {Limit: 1, Window: day, ChargeRejected: true},
		ClientScope(Query, "").Name():  {Limit: 5, Window: day, ChargeRejected: true},
	}
}

func (ps Policies) For(s Scope) (Policy, error) {
	p, ok := ps[s.Name()]
	if !ok {
		return Policy{}, fmt.Errorf("%w: no policy for scope %s", ErrInvalidPolicy, s.Name())
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("scope %s: %w", s.Name(), err)
	}
	return p.Normalize(), nil
}

func (ps Policies) Validate() error {
	for _, s := range []Scope{GlobalScope(Upload), ClientScope(Upload, ""), ClientScope(Query, "")} {
		if _, err := ps.For(s); err != nil {
			return err
		}
	}
	return nil
}

// Decision é o resultado de uma checagem. Nunca é persistida: é recalculada a partir
// do estado do Counter Store a cada chamada.
type Decision struct {
	Scope     Scope
	Admitted  bool
	Limit     int
	Window    time.Duration
	Remaining int
	ResetAt   time.Time
}

// RetryAfter é quanto falta para ResetAt (nunca negativo).
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}
