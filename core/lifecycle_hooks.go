package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// NamedLifecycleHooks lets a hook identify itself in failure logs.
type NamedLifecycleHooks interface {
	LifecycleHooks
	Name() string
}

// LifecycleHookCoordinator fans status changes out to registered hooks in
// registration order. Hooks run after the record is committed, so their
// failures are aggregated and reported without undoing the write.
type LifecycleHookCoordinator struct {
	mu    sync.RWMutex
	hooks []LifecycleHooks
}

func NewLifecycleHookCoordinator(hooks ...LifecycleHooks) *LifecycleHookCoordinator {
	coordinator := &LifecycleHookCoordinator{hooks: make([]LifecycleHooks, 0, len(hooks))}
	for _, hook := range hooks {
		coordinator.Register(hook)
	}
	return coordinator
}

func (c *LifecycleHookCoordinator) Register(hook LifecycleHooks) {
	if c == nil || hook == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

func (c *LifecycleHookCoordinator) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks)
}

// OnStatusChanged makes the coordinator itself usable as a hook.
func (c *LifecycleHookCoordinator) OnStatusChanged(ctx context.Context, change StatusChange) error {
	var hookErr error
	for _, hook := range c.snapshot() {
		if err := hook.OnStatusChanged(ctx, change); err != nil {
			hookErr = errors.Join(hookErr, fmt.Errorf("status hook %q failed: %w", hookName(hook), err))
		}
	}
	return hookErr
}

func (c *LifecycleHookCoordinator) snapshot() []LifecycleHooks {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LifecycleHooks, len(c.hooks))
	copy(out, c.hooks)
	return out
}

func hookName(hook LifecycleHooks) string {
	named, ok := hook.(NamedLifecycleHooks)
	if !ok {
		return "unnamed"
	}
	name := strings.TrimSpace(named.Name())
	if name == "" {
		return "unnamed"
	}
	return name
}

func (s *Service) notifyStatusChanged(ctx context.Context, change StatusChange) {
	if s == nil || s.hooks == nil || s.hooks.Len() == 0 {
		return
	}
	if err := s.hooks.OnStatusChanged(ctx, change); err != nil {
		s.logWarn(ctx, "status change hooks failed", map[string]any{
			"tenant_id": change.TenantID,
			"from":      string(change.From),
			"to":        string(change.To),
			"version":   change.Version,
			"error":     err.Error(),
		})
	}
}
