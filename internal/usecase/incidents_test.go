package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogIncidentReporterFields(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := NewLogIncidentReporter(zap.New(core))

	r.Report(context.Background(), domain.Incident{
		Kind:    domain.IncidentPublishExhausted,
		AlertID: 9,
		Event: &domain.NotificationEvent{
			EventID:        "ev-9",
			ObservedPrice:  decimal.RequireFromString("101.5"),
			ContactAddress: "a@example.com",
		},
		Err:        errors.New("broker down"),
		OccurredAt: time.Unix(0, 0),
	})

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "publish_exhausted", ctx["kind"])
	assert.Equal(t, uint64(9), ctx["alert_id"])
	assert.Equal(t, "ev-9", ctx["event_id"])
	assert.Equal(t, "101.5", ctx["observed_price"])
	assert.Equal(t, "broker down", ctx["error"])
}

func TestMultiIncidentReporterFansOut(t *testing.T) {
	first, second := &memIncidents{}, &memIncidents{}
	multi := MultiIncidentReporter{first, nil, second}

	multi.Report(context.Background(), domain.Incident{Kind: domain.IncidentScanExhausted})

	assert.Len(t, first.all(), 1)
	assert.Len(t, second.all(), 1)
}
