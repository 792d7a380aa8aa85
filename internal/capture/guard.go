package capture

import "golang.org/x/sync/semaphore"

// Guard admits one submission at a time for a single capture source.
type Guard struct {
	sem *semaphore.Weighted
}

// NewGuard creates an open guard.
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// TryAcquire claims the guard without waiting. It reports false while a
// submission is in flight.
func (g *Guard) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release frees the guard. Call it exactly once per successful TryAcquire.
func (g *Guard) Release() {
	g.sem.Release(1)
}
