package domain

import "errors"

var (
	// ErrStoreUnavailable indica que o Counter Store não respondeu. Nunca deve virar
	// "admitido" nem "rejeitado" silenciosamente.
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrInvalidPolicy    = errors.New("invalid rate limit policy")
	ErrNoSlot           = errors.New("no concurrency slot available")
)
