package loader

import "context"

// Semaphore is a channel-backed counting semaphore, the same buffered-channel
// idiom the teacher uses for its worker pool (pool.go's v8Pool.workers) —
// here bounding concurrent module downloads instead of pooling engines.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore creates a Semaphore with n permits. n <= 0 is treated as 1.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the semaphore.
func (s *Semaphore) Release() {
	<-s.tokens
}
