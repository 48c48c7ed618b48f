package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/entitlement"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/usage"
)

// DefaultTimeout bounds every hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook lists are cached by type at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                  []OnInit
	onShutdown              []OnShutdown
	onNumberAllocated       []OnNumberAllocated
	onUsageReserved         []OnUsageReserved
	onQuotaExceeded         []OnQuotaExceeded
	onUsageReleased         []OnUsageReleased
	onDocumentCreated       []OnDocumentCreated
	onDocumentUpdated       []OnDocumentUpdated
	onDocumentStatusChanged []OnDocumentStatusChanged
	onDocumentDeleted       []OnDocumentDeleted
	onModificationAttempt   []OnModificationAttempt
	onAuditFailed           []OnAuditFailed
	onJobCompleted          []OnJobCompleted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	cache := func(name string, add func()) {
		add()
		hooks = append(hooks, name)
	}

	if v, ok := p.(OnInit); ok {
		cache("OnInit", func() { r.onInit = append(r.onInit, v) })
	}
	if v, ok := p.(OnShutdown); ok {
		cache("OnShutdown", func() { r.onShutdown = append(r.onShutdown, v) })
	}
	if v, ok := p.(OnNumberAllocated); ok {
		cache("OnNumberAllocated", func() { r.onNumberAllocated = append(r.onNumberAllocated, v) })
	}
	if v, ok := p.(OnUsageReserved); ok {
		cache("OnUsageReserved", func() { r.onUsageReserved = append(r.onUsageReserved, v) })
	}
	if v, ok := p.(OnQuotaExceeded); ok {
		cache("OnQuotaExceeded", func() { r.onQuotaExceeded = append(r.onQuotaExceeded, v) })
	}
	if v, ok := p.(OnUsageReleased); ok {
		cache("OnUsageReleased", func() { r.onUsageReleased = append(r.onUsageReleased, v) })
	}
	if v, ok := p.(OnDocumentCreated); ok {
		cache("OnDocumentCreated", func() { r.onDocumentCreated = append(r.onDocumentCreated, v) })
	}
	if v, ok := p.(OnDocumentUpdated); ok {
		cache("OnDocumentUpdated", func() { r.onDocumentUpdated = append(r.onDocumentUpdated, v) })
	}
	if v, ok := p.(OnDocumentStatusChanged); ok {
		cache("OnDocumentStatusChanged", func() { r.onDocumentStatusChanged = append(r.onDocumentStatusChanged, v) })
	}
	if v, ok := p.(OnDocumentDeleted); ok {
		cache("OnDocumentDeleted", func() { r.onDocumentDeleted = append(r.onDocumentDeleted, v) })
	}
	if v, ok := p.(OnModificationAttempt); ok {
		cache("OnModificationAttempt", func() { r.onModificationAttempt = append(r.onModificationAttempt, v) })
	}
	if v, ok := p.(OnAuditFailed); ok {
		cache("OnAuditFailed", func() { r.onAuditFailed = append(r.onAuditFailed, v) })
	}
	if v, ok := p.(OnJobCompleted); ok {
		cache("OnJobCompleted", func() { r.onJobCompleted = append(r.onJobCompleted, v) })
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit snapshots a hook list under the read lock and calls each hook with
// the registry timeout. Failures are logged and never returned.
func emit[T Plugin](r *Registry, ctx context.Context, hook string, list *[]T, call func(T) error) {
	r.mu.RLock()
	plugins := *list
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(r, ctx, "OnInit", &r.onInit, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", &r.onShutdown, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitNumberAllocated emits a number allocated event.
func (r *Registry) EmitNumberAllocated(ctx context.Context, userID string, n sequence.Number) {
	emit(r, ctx, "OnNumberAllocated", &r.onNumberAllocated, func(p OnNumberAllocated) error {
		return p.OnNumberAllocated(ctx, userID, n)
	})
}

// EmitUsageReserved emits a usage reserved event.
func (r *Registry) EmitUsageReserved(ctx context.Context, userID string, result *entitlement.Result) {
	emit(r, ctx, "OnUsageReserved", &r.onUsageReserved, func(p OnUsageReserved) error {
		return p.OnUsageReserved(ctx, userID, result)
	})
}

// EmitQuotaExceeded emits a quota exceeded event.
func (r *Registry) EmitQuotaExceeded(ctx context.Context, userID string, result *entitlement.Result) {
	emit(r, ctx, "OnQuotaExceeded", &r.onQuotaExceeded, func(p OnQuotaExceeded) error {
		return p.OnQuotaExceeded(ctx, userID, result)
	})
}

// EmitUsageReleased emits a usage released event.
func (r *Registry) EmitUsageReleased(ctx context.Context, userID string, metric usage.Metric, current int64) {
	emit(r, ctx, "OnUsageReleased", &r.onUsageReleased, func(p OnUsageReleased) error {
		return p.OnUsageReleased(ctx, userID, metric, current)
	})
}

// EmitDocumentCreated emits a document created event.
func (r *Registry) EmitDocumentCreated(ctx context.Context, doc *document.Document) {
	emit(r, ctx, "OnDocumentCreated", &r.onDocumentCreated, func(p OnDocumentCreated) error {
		return p.OnDocumentCreated(ctx, doc)
	})
}

// EmitDocumentUpdated emits a document updated event.
func (r *Registry) EmitDocumentUpdated(ctx context.Context, doc *document.Document, changes []audit.Change) {
	emit(r, ctx, "OnDocumentUpdated", &r.onDocumentUpdated, func(p OnDocumentUpdated) error {
		return p.OnDocumentUpdated(ctx, doc, changes)
	})
}

// EmitDocumentStatusChanged emits a document status changed event.
func (r *Registry) EmitDocumentStatusChanged(ctx context.Context, doc *document.Document, from document.Status) {
	emit(r, ctx, "OnDocumentStatusChanged", &r.onDocumentStatusChanged, func(p OnDocumentStatusChanged) error {
		return p.OnDocumentStatusChanged(ctx, doc, from)
	})
}

// EmitDocumentDeleted emits a document deleted event.
func (r *Registry) EmitDocumentDeleted(ctx context.Context, doc *document.Document) {
	emit(r, ctx, "OnDocumentDeleted", &r.onDocumentDeleted, func(p OnDocumentDeleted) error {
		return p.OnDocumentDeleted(ctx, doc)
	})
}

// EmitModificationAttempt emits a rejected modification event.
func (r *Registry) EmitModificationAttempt(ctx context.Context, doc *document.Document, changes []audit.Change) {
	emit(r, ctx, "OnModificationAttempt", &r.onModificationAttempt, func(p OnModificationAttempt) error {
		return p.OnModificationAttempt(ctx, doc, changes)
	})
}

// EmitAuditFailed emits an audit failure event.
func (r *Registry) EmitAuditFailed(ctx context.Context, entry *audit.Entry, err error) {
	emit(r, ctx, "OnAuditFailed", &r.onAuditFailed, func(p OnAuditFailed) error {
		return p.OnAuditFailed(ctx, entry, err)
	})
}

// EmitJobCompleted emits a background job completion event.
func (r *Registry) EmitJobCompleted(ctx context.Context, job string, affected int64, elapsed time.Duration, jobErr error) {
	emit(r, ctx, "OnJobCompleted", &r.onJobCompleted, func(p OnJobCompleted) error {
		return p.OnJobCompleted(ctx, job, affected, elapsed, jobErr)
	})
}

// callWithTimeout calls a plugin function with a timeout so a slow plugin
// never stalls a request.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
