package infra

import "time"

// DoneContext aceita um context.Context sem exigir o pacote context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}

// startJanitor chama cleanup a cada every numa goroutine própria. every <= 0 desliga.
func startJanitor(ctx DoneContext, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}
	go func() {
		tick := time.NewTicker(every)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
