package conversation

import "sync/atomic"

// Gate is a single-permit admission primitive. TryAcquire checks and takes the
// permit in one atomic step, so two callers can never both observe it free.
type Gate struct {
	held atomic.Bool
}

func (g *Gate) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

func (g *Gate) Release() {
	g.held.Store(false)
}

func (g *Gate) Held() bool {
	return g.held.Load()
}
