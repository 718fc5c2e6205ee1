package usecase

import (
	"context"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
)

// Recorder receives pipeline counters. The metrics adapter implements it.
type Recorder interface {
	TickReceived()
	TickDiscarded()
	TickProcessed(duration time.Duration)
	AlertCrossed()
	AlertTriggered()
	TransitionConflict()
	PublishRetried()
	PublishFailed()
}

type nopRecorder struct{}

func (nopRecorder) TickReceived()               {}
func (nopRecorder) TickDiscarded()              {}
func (nopRecorder) TickProcessed(time.Duration) {}
func (nopRecorder) AlertCrossed()               {}
func (nopRecorder) AlertTriggered()             {}
func (nopRecorder) TransitionConflict()         {}
func (nopRecorder) PublishRetried()             {}
func (nopRecorder) PublishFailed()              {}

type nopIncidentReporter struct{}

func (nopIncidentReporter) Report(context.Context, domain.Incident) {}
