package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// KeyFunc resolve a chave que identifica o cliente em todas as cotas.
type KeyFunc func(r *http.Request) string

const unknownClient = "unknown"

// DefaultKeyFunc tenta, nessa ordem: header configurado, primeiro hop do
// X-Forwarded-For (só com trustXFF) e o host do RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if k := headerKey(r, keyHeader); k != "" {
			return k
		}
		if trustXFF {
			if k := forwardedFor(r); k != "" {
				return k
			}
		}
		return remoteHost(r.RemoteAddr)
	}
}

func headerKey(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(r.Header.Get(name))
}

func forwardedFor(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	return strings.TrimSpace(first)
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr == "" {
		return unknownClient
	}
	return addr
}

type clientKeyCtx struct{}

// WithClientKey guarda a chave do cliente no contexto para os handlers seguintes.
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyCtx{}, key)
}

// ClientKey devolve a chave gravada por Middleware ("" fora dele).
func ClientKey(ctx context.Context) string {
	key, _ := ctx.Value(clientKeyCtx{}).(string)
	return key
}
