package timeout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

// Registry holds one in-process timer per order group. Timers do not survive
// restarts; the startup sweep and the cron reaper cover groups whose timer
// was lost.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	logg   *logger.Logger
}

// NewRegistry builds an empty timer registry. The logger receives recovered
// callback panics; nil disables that reporting.
func NewRegistry(logg *logger.Logger) *Registry {
	return &Registry{timers: make(map[string]*time.Timer), logg: logg}
}

// Arm schedules fn to run after d for the given group. Arming a group that
// already has a timer replaces it. fn runs on a timer goroutine; a panic in
// it is recovered and logged so it cannot take the process down.
func (r *Registry) Arm(groupID string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.timers[groupID]; ok {
		existing.Stop()
	}
	r.timers[groupID] = time.AfterFunc(d, func() {
		r.remove(groupID)
		defer func() {
			if rec := recover(); rec != nil && r.logg != nil {
				ctx := r.logg.WithFields(context.Background(), map[string]any{
					"panic":       rec,
					"order_group": groupID,
				})
				r.logg.Error(ctx, "panic.recovered", fmt.Errorf("panic: %v", rec))
			}
		}()
		fn()
	})
}

// Cancel stops and drops the group's timer if one is armed.
func (r *Registry) Cancel(groupID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	timer, ok := r.timers[groupID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.timers, groupID)
	return true
}

// Len reports how many timers are currently armed.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Sweep cancels every armed timer.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
}

func (r *Registry) remove(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timers, groupID)
}
