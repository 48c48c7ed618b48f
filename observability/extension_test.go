package observability_test

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/document"
	"github.com/xraph/folio/observability"
	"github.com/xraph/folio/sequence"
	"github.com/xraph/folio/store/memory"
)

func value(t *testing.T, m any) float64 {
	t.Helper()
	c, ok := m.(prometheus.Collector)
	require.True(t, ok, "metric %T is not a prometheus collector", m)
	return testutil.ToFloat64(c)
}

func TestMetricsExtensionRecordsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	ctx := context.Background()
	f := folio.New(memory.New(),
		folio.WithClock(clockwork.NewFakeClock()),
		folio.WithPlugin(metrics),
	)
	require.NoError(t, f.Start(ctx))
	t.Cleanup(func() { _ = f.Stop() })

	u, err := f.RegisterUser(ctx, "metrics@example.com", "Metrics")
	require.NoError(t, err)
	actor := folio.Actor{PerformedBy: u.ID}

	newInvoice := func() *document.Document {
		return &document.Document{
			UserID:   u.ID,
			Type:     sequence.TypeInvoice,
			ClientID: "client_1",
			Lines: []document.Line{{
				Description: "Consulting",
				Quantity:    decimal.NewFromInt(2),
				UnitPrice:   folio.EUR(5000),
				VATRate:     decimal.NewFromInt(20),
			}},
		}
	}

	var first *document.Document
	for i := range 5 {
		d := newInvoice()
		require.NoError(t, f.CreateDocument(ctx, d, actor))
		if i == 0 {
			first = d
		}
	}
	assert.ErrorIs(t, f.CreateDocument(ctx, newInvoice(), actor), folio.ErrQuotaExceeded)

	_, err = f.FinalizeDocument(ctx, first.ID, actor)
	require.NoError(t, err)

	tests := []struct {
		name   string
		metric any
		want   float64
	}{
		{"invoice numbers", metrics.InvoiceNumbers, 5},
		{"quote numbers", metrics.QuoteNumbers, 0},
		{"reserved", metrics.UsageReserved, 5},
		{"quota exceeded", metrics.QuotaExceeded, 1},
		{"invoice denials", metrics.InvoiceDenials, 1},
		{"created", metrics.DocumentCreated, 5},
		{"finalized", metrics.DocumentFinalized, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, value(t, tt.metric))
		})
	}

	n, err := testutil.GatherAndCount(reg, "folio_document_created_total", "folio_document_total_minor_units")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrometheusFactorySharesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	b := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	a.DocumentDeleted.Inc()
	b.DocumentDeleted.Inc()

	assert.Equal(t, float64(2), value(t, a.DocumentDeleted))
}

func TestJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	ctx := context.Background()
	require.NoError(t, m.OnJobCompleted(ctx, folio.JobAuditPurge, 12, 0, nil))
	require.NoError(t, m.OnJobCompleted(ctx, folio.JobQuoteExpiry, 0, 0, assert.AnError))

	assert.Equal(t, float64(2), value(t, m.JobRuns))
	assert.Equal(t, float64(1), value(t, m.JobFailures))
	assert.Equal(t, float64(12), value(t, m.JobAffected))
}
