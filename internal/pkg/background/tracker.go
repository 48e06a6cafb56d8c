// Package background runs fire-and-forget writes that must outlive the
// request that started them.
package background

import (
	"context"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Tracker struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	pending int
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Go runs fn detached from ctx cancellation. Errors are logged with name.
func (t *Tracker) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	bg := context.WithoutCancel(ctx)
	t.wg.Add(1)
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
	go func() {
		defer func() {
			t.mu.Lock()
			t.pending--
			t.mu.Unlock()
			t.wg.Done()
		}()
		if err := fn(bg); err != nil {
			logutil.GetLogger(bg).Error("background task failed",
				zap.String("task", name), zap.Error(err))
		}
	}()
}

func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Wait blocks until every started task has finished or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
