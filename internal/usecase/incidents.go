package usecase

import (
	"context"

	"github.com/NasaVasa/pricealert/internal/domain"
	"go.uber.org/zap"
)

// LogIncidentReporter writes every incident at error level.
type LogIncidentReporter struct {
	logger *zap.Logger
}

func NewLogIncidentReporter(logger *zap.Logger) *LogIncidentReporter {
	return &LogIncidentReporter{logger: logger.Named("incidents")}
}

func (r *LogIncidentReporter) Report(_ context.Context, incident domain.Incident) {
	fields := []zap.Field{
		zap.String("kind", string(incident.Kind)),
		zap.Time("occurred_at", incident.OccurredAt),
	}
	if incident.AlertID != 0 {
		fields = append(fields, zap.Uint("alert_id", incident.AlertID))
	}
	if incident.Event != nil {
		fields = append(fields,
			zap.String("event_id", incident.Event.EventID),
			zap.String("observed_price", incident.Event.ObservedPrice.String()),
			zap.String("email", incident.Event.ContactAddress),
		)
	}
	if incident.Err != nil {
		fields = append(fields, zap.Error(incident.Err))
	}
	r.logger.Error("incident", fields...)
}

// MultiIncidentReporter fans one incident out to every reporter in order.
type MultiIncidentReporter []domain.IncidentReporter

func (m MultiIncidentReporter) Report(ctx context.Context, incident domain.Incident) {
	for _, reporter := range m {
		if reporter != nil {
			reporter.Report(ctx, incident)
		}
	}
}
