package session

import (
	"context"
	"sync"
)

// inflight counts outstanding transcription calls. Wait blocks until the
// count drops to zero. Unlike sync.WaitGroup, Add may be called while a
// Wait is in progress.
type inflight struct {
	mu   sync.Mutex
	n    int
	zero chan struct{}
}

func newInflight() *inflight {
	zero := make(chan struct{})
	close(zero)
	return &inflight{zero: zero}
}

func (f *inflight) Add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.zero = make(chan struct{})
	}
	f.n++
}

func (f *inflight) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return
	}
	f.n--
	if f.n == 0 {
		close(f.zero)
	}
}

func (f *inflight) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *inflight) Wait(ctx context.Context) error {
	f.mu.Lock()
	zero := f.zero
	f.mu.Unlock()

	select {
	case <-zero:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
