package hooks

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/evoapps/datastore/pkg/types"
	"github.com/evoapps/datastore/server/internal/config"
)

const (
	maxHistoryLen  = 200
	requestTimeout = 10 * time.Second
)

// Delivery status values.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Delivery records one webhook attempt.
type Delivery struct {
	Hook   string    `json:"hook"`
	Type   string    `json:"type"`
	Path   string    `json:"path"`
	At     time.Time `json:"at"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// Engine matches change events against configured hooks and delivers them.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	hooks    []config.HookConfig
	lastFire map[string]time.Time // by hook name, for cooldown
	history  []Delivery

	client *http.Client
	now    func() time.Time
	wg     sync.WaitGroup
}

// New creates an Engine for hooks. An Engine without hooks is valid;
// Notify becomes a no-op.
func New(hooks []config.HookConfig) *Engine {
	return &Engine{
		hooks:    hooks,
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: requestTimeout},
		now:      time.Now,
	}
}

// Reload replaces the hook set. Cooldown state is kept for hooks whose name
// survives the reload.
func (e *Engine) Reload(hooks []config.HookConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	keep := make(map[string]time.Time, len(hooks))
	for _, h := range hooks {
		if t, ok := e.lastFire[h.Name]; ok {
			keep[h.Name] = t
		}
	}
	e.hooks = hooks
	e.lastFire = keep
	slog.Info("hooks: reloaded", "count", len(hooks))
}

// Notify evaluates ev against every hook and starts delivery for each match
// that is outside its cooldown and has a URL configured. It does not block on
// delivery, so it can be registered directly as a store listener.
func (e *Engine) Notify(ev types.ChangeEvent) {
	now := e.now()

	e.mu.Lock()
	var due []config.HookConfig
	for _, h := range e.hooks {
		if !matches(h.Match, ev.Path) {
			continue
		}
		if h.Cooldown > 0 && now.Sub(e.lastFire[h.Name]) < h.Cooldown {
			continue
		}
		if h.URL() == "" {
			slog.Debug("hooks: no url configured, skipping", "hook", h.Name, "env", h.URLEnv)
			continue
		}
		e.lastFire[h.Name] = now
		due = append(due, h)
	}
	e.mu.Unlock()

	for _, h := range due {
		e.wg.Add(1)
		go func(h config.HookConfig) {
			defer e.wg.Done()
			e.deliver(h, ev)
		}(h)
	}
}

// Recent returns the recorded deliveries, newest first.
func (e *Engine) Recent() []Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Delivery, len(e.history))
	for i, d := range e.history {
		out[len(e.history)-1-i] = d
	}
	return out
}

// Wait blocks until every in-flight delivery has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) record(d Delivery) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, d)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
}

func matches(pattern, path string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
