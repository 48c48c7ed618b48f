package audithook

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/folio/audit"
)

// Option configures a Trail.
type Option func(*Trail)

// WithLogger sets the logger for the trail.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

// WithClock sets the clock used to stamp PerformedAt.
func WithClock(c clockwork.Clock) Option {
	return func(t *Trail) {
		t.clock = c
	}
}

// WithTimeout bounds each write.
func WithTimeout(d time.Duration) Option {
	return func(t *Trail) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithFailureHandler is called for every entry that could not be written.
func WithFailureHandler(h FailureHandler) Option {
	return func(t *Trail) {
		t.onFailure = h
	}
}

// WithEnabledActions sets which actions to audit.
// If not called, all actions are audited.
func WithEnabledActions(actions ...audit.Action) Option {
	return func(t *Trail) {
		t.enabled = make(map[audit.Action]bool)
		for _, action := range actions {
			t.enabled[action] = true
		}
	}
}

// WithDisabledActions sets which actions to skip. modification_attempt
// cannot be disabled.
func WithDisabledActions(actions ...audit.Action) Option {
	return func(t *Trail) {
		if t.enabled == nil {
			t.enabled = make(map[audit.Action]bool)
			for _, action := range audit.Actions() {
				t.enabled[action] = true
			}
		}
		for _, action := range actions {
			if action == audit.ActionModificationAttempt {
				continue
			}
			delete(t.enabled, action)
		}
	}
}
