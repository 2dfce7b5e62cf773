package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"docqa-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyMiddleware_BusyWhenAllSlotsHeld(t *testing.T) {
	pool := infra.NewChanPool(2)
	hold := make(chan struct{})
	entered := make(chan struct{}, 2)

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-hold
	})
	h := ConcurrencyMiddleware(ConcurrencyOptions{Pool: pool, AcquireTimeout: 20 * time.Millisecond})(slow)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/upload", nil))
			codes[i] = w.Code
		}(i)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			close(hold)
			t.Fatal("slot holders never entered the handler")
		}
	}
	assert.Equal(t, 2, pool.InUse())

	// as duas vagas estão presas: a terceira espera o timeout e recebe 503
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/query", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), CodeServerBusy)

	close(hold)
	wg.Wait()
	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
	assert.Equal(t, 0, pool.InUse())
}

func TestConcurrencyMiddleware_ReleasesAfterHandler(t *testing.T) {
	pool := infra.NewChanPool(1)
	h := ConcurrencyMiddleware(ConcurrencyOptions{Pool: pool, AcquireTimeout: 10 * time.Millisecond})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}
}

func TestConcurrencyMiddleware_NilPoolPassesThrough(t *testing.T) {
	calls := 0
	h := ConcurrencyMiddleware(ConcurrencyOptions{})(countingHandler(&calls))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, calls)
}
