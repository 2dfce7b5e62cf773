// Package session guarda o texto extraído de um documento sob um identificador opaco,
// com expiração absoluta. Sessões são gravadas uma vez, lidas várias e expiram sozinhas:
// não existe update nem delete.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultTTL      = 24 * time.Hour
	DefaultMaxChars = 30000
	DefaultPrefix   = "session"
)

// ErrNotFound cobre tanto "nunca existiu" quanto "expirou".
var ErrNotFound = errors.New("session not found or expired")

// KV é o substrato chave-valor do Counter Store usado pelas sessões.
type KV interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

type Session struct {
	ID        string    `json:"id"`
	Text      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Store struct {
	kv       KV
	prefix   string
	ttl      time.Duration
	maxChars int
	newID    func() string
	now      func() time.Time
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

func WithMaxChars(n int) Option { return func(s *Store) { s.maxChars = n } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		prefix:   DefaultPrefix,
		ttl:      DefaultTTL,
		maxChars: DefaultMaxChars,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	return s
}

func (s *Store) key(id string) string { return s.prefix + ":" + id }

func (s *Store) TTL() time.Duration { return s.ttl }

// Create grava o texto (cortado em maxChars runes) com expiração de ttl a partir de agora.
func (s *Store) Create(ctx context.Context, text string) (Session, error) {
	now := s.now()
	sess := Session{
		ID:        s.newID(),
		Text:      Truncate(text, s.maxChars),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.kv.SetWithTTL(ctx, s.key(sess.ID), sess.Text, s.ttl); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get devolve o texto da sessão ou ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrNotFound
	}
	text, ok, err := s.kv.Get(ctx, s.key(id))
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

// Truncate corta s nos primeiros max caracteres (runes). max <= 0 não corta.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
