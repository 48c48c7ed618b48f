package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio/audit"
	"github.com/xraph/folio/sequence"
)

type countingPlugin struct {
	allocated atomic.Int64
	failed    atomic.Int64
}

func (p *countingPlugin) Name() string { return "counting" }

func (p *countingPlugin) OnNumberAllocated(context.Context, string, sequence.Number) error {
	p.allocated.Add(1)
	return nil
}

func (p *countingPlugin) OnAuditFailed(context.Context, *audit.Entry, error) error {
	p.failed.Add(1)
	return errors.New("plugin error is swallowed")
}

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnShutdown(ctx context.Context) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterAndEmit(t *testing.T) {
	r := quietRegistry()
	p := &countingPlugin{}
	require.NoError(t, r.Register(p))

	ctx := context.Background()
	r.EmitNumberAllocated(ctx, "usr_1", sequence.Number{Prefix: "FACT", Year: 2025, Value: 1})
	r.EmitNumberAllocated(ctx, "usr_1", sequence.Number{Prefix: "FACT", Year: 2025, Value: 2})
	r.EmitAuditFailed(ctx, &audit.Entry{}, errors.New("store down"))

	assert.Equal(t, int64(2), p.allocated.Load())
	assert.Equal(t, int64(1), p.failed.Load())
	assert.Equal(t, 1, r.Count())
	assert.Same(t, p, r.Get("counting"))
	assert.Nil(t, r.Get("missing"))
}

func TestDuplicateRegistration(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(&countingPlugin{}))
	assert.Error(t, r.Register(&countingPlugin{}))
	assert.Len(t, r.List(), 1)
}

func TestSlowPluginTimesOut(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slowPlugin{}))

	start := time.Now()
	r.EmitShutdown(context.Background())
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
