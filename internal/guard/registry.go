package guard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
)

// ErrRegistryClosed is returned by Start after Shutdown.
var ErrRegistryClosed = errors.New("guard registry is shut down")

// Handle is a running guard task.
type Handle struct {
	ID        string
	Key       domain.GuardKey
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel asks the task to stop. It does not wait.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task has returned or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns a read-only view of the handle.
func (h *Handle) Info() domain.GuardInfo {
	return domain.GuardInfo{GuardID: h.ID, Key: h.Key, StartedAt: h.StartedAt}
}

// Registry keeps at most one running guard per key. Starting a guard for a key that
// already has one cancels the old task first.
type Registry struct {
	logger ports.Logger

	mu     sync.Mutex
	guards map[domain.GuardKey]*Handle
	closed bool
	wg     sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(logger ports.Logger) *Registry {
	return &Registry{
		logger: logger,
		guards: make(map[domain.GuardKey]*Handle),
	}
}

// Start runs fn in its own goroutine under key. fn receives a context cancelled on
// supersession, Cancel or Shutdown, and the new guard ID.
func (r *Registry) Start(parent context.Context, key domain.GuardKey, fn func(ctx context.Context, guardID string)) (*Handle, error) {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		ID:        uuid.NewString(),
		Key:       key,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return nil, ErrRegistryClosed
	}
	if old, ok := r.guards[key]; ok {
		old.cancel()
		r.logger.Info(ctx, "GuardRegistry: superseding running guard", map[string]interface{}{
			"key": key.String(), "oldGuardID": old.ID, "newGuardID": h.ID,
		})
	}
	r.guards[key] = h
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			r.release(h)
			close(h.done)
			r.wg.Done()
		}()
		fn(ctx, h.ID)
	}()
	return h, nil
}

// release removes h only if it is still the registered guard for its key.
func (r *Registry) release(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.guards[h.Key]; ok && cur.ID == h.ID {
		delete(r.guards, h.Key)
	}
}

// Cancel stops the guard for key and reports whether one was running.
func (r *Registry) Cancel(key domain.GuardKey) bool {
	r.mu.Lock()
	h, ok := r.guards[key]
	if ok {
		delete(r.guards, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	h.cancel()
	return true
}

// Active reports whether a guard is registered for key.
func (r *Registry) Active(key domain.GuardKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.guards[key]
	return ok
}

// Len returns the number of registered guards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.guards)
}

// Snapshot lists registered guards ordered by start time.
func (r *Registry) Snapshot() []domain.GuardInfo {
	r.mu.Lock()
	out := make([]domain.GuardInfo, 0, len(r.guards))
	for _, h := range r.guards {
		out = append(out, h.Info())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Key.String() < out[j].Key.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Shutdown cancels every guard and waits for all tasks to return or ctx to end.
// Start fails afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, h := range r.guards {
		h.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info(ctx, "GuardRegistry: all guards stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn(ctx, "GuardRegistry: shutdown timed out with guards still running", map[string]interface{}{"remaining": r.Len()})
		return ctx.Err()
	}
}
