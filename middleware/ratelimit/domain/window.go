package domain

import (
	"context"
	"time"
)

// CounterStore é o contrato do armazenamento compartilhado entre instâncias.
//
// Hit precisa ser uma única operação atômica (registrar + somar + decidir): duas
// chamadas concorrentes para a mesma chave nunca podem admitir juntas mais que Limit.
// Falhas de infraestrutura devem ser devolvidas envolvendo ErrStoreUnavailable.
type CounterStore interface {
	Hit(ctx context.Context, h WindowHit) (WindowState, error)
}

// WindowHit descreve uma tentativa contra a janela deslizante de uma chave.
//
// A janela é dividida em sub-buckets de Granularity. Um bucket continua "vivo" enquanto
// o seu fim estiver dentro da janela, então uma tentativa nunca é esquecida antes do
// tempo: o limiter pode bloquear até um bucket a mais, mas nunca admite a mais.
type WindowHit struct {
	Key            Key
	At             time.Time
	Limit          int
	Window         time.Duration
	Granularity    time.Duration
	ChargeRejected bool
}

type WindowState struct {
	Admitted     bool
	// Used é o total de tentativas contadas na janela, já incluindo esta (se contada).
	Used         int
	// OldestBucket é o índice do bucket vivo mais antigo; válido só se HasOldest.
	OldestBucket int64
	HasOldest    bool
}

func (h WindowHit) granMillis() int64 {
	g := h.Granularity.Milliseconds()
	if g <= 0 {
		g = 1
	}
	return g
}

// Bucket é o índice do bucket que contém At.
func (h WindowHit) Bucket() int64 { return floorDiv(h.At.UnixMilli(), h.granMillis()) }

// OldestLiveBucket é o menor índice cujo fim ainda cai dentro da janela.
func (h WindowHit) OldestLiveBucket() int64 {
	return floorDiv(h.At.UnixMilli()-h.Window.Milliseconds(), h.granMillis())
}

// TTL é a expiração aplicada à chave a cada hit.
func (h WindowHit) TTL() time.Duration { return h.Window + time.Duration(h.granMillis())*time.Millisecond }

// BucketExpiry é o instante em que o bucket deixa de contar.
func (h WindowHit) BucketExpiry(bucket int64) time.Time {
	return time.UnixMilli((bucket+1)*h.granMillis() + h.Window.Milliseconds())
}

// ResetAt é quando a vaga mais antiga volta a ficar disponível.
func (h WindowHit) ResetAt(st WindowState) time.Time {
	if !st.HasOldest {
		return h.At.Add(h.Window)
	}
	return h.BucketExpiry(st.OldestBucket)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
