package usecase

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
)

// memStore is a map-backed AlertStore. Its scan re-reads each record under
// the lock as it goes, so concurrent transitions are visible mid-scan the
// way they are with a database cursor.
type memStore struct {
	mu     sync.Mutex
	nextID uint
	alerts map[uint]domain.Alert

	// scanFailures makes the next N scans fail after yielding failAfter rows.
	scanFailures int
	failAfter    int
	scans        int
	transitions  int

	// rowErrs are yielded at the start of every scan.
	rowErrs []error
}

func newMemStore() *memStore {
	return &memStore{alerts: make(map[uint]domain.Alert)}
}

func (s *memStore) add(target string, condition domain.TriggerCondition, email string) domain.Alert {
	alert := domain.Alert{
		OwnerID:        1,
		TargetPrice:    decimal.RequireFromString(target),
		Condition:      condition,
		ContactAddress: email,
		State:          domain.AlertStateCreated,
	}
	if err := s.Create(context.Background(), &alert); err != nil {
		panic(err)
	}
	return alert
}

func (s *memStore) state(id uint) domain.AlertState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts[id].State
}

func (s *memStore) StreamActive(ctx context.Context) iter.Seq2[domain.Alert, error] {
	return func(yield func(domain.Alert, error) bool) {
		s.mu.Lock()
		s.scans++
		fail := s.scanFailures > 0
		if fail {
			s.scanFailures--
		}
		ids := make([]uint, 0, len(s.alerts))
		for id := range s.alerts {
			ids = append(ids, id)
		}
		rowErrs := slices.Clone(s.rowErrs)
		s.mu.Unlock()
		slices.Sort(ids)

		for _, err := range rowErrs {
			if !yield(domain.Alert{}, err) {
				return
			}
		}

		yielded := 0
		for _, id := range ids {
			if fail && yielded == s.failAfter {
				yield(domain.Alert{}, domain.ErrStoreUnavailable)
				return
			}
			s.mu.Lock()
			alert, ok := s.alerts[id]
			s.mu.Unlock()
			if !ok || alert.State != domain.AlertStateCreated {
				continue
			}
			yielded++
			if !yield(alert, nil) {
				return
			}
		}
	}
}

func (s *memStore) TryTransition(ctx context.Context, alertID uint, from, to domain.AlertState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions++
	alert, ok := s.alerts[alertID]
	if !ok || alert.State != from {
		return false, nil
	}
	alert.State = to
	alert.UpdatedAt = time.Now()
	s.alerts[alertID] = alert
	return true, nil
}

func (s *memStore) GetByID(ctx context.Context, alertID uint) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &alert, nil
}

func (s *memStore) Create(ctx context.Context, alert *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	alert.ID = s.nextID
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = alert.CreatedAt
	s.alerts[alert.ID] = *alert
	return nil
}

func (s *memStore) ListByOwner(ctx context.Context, ownerID uint, state *domain.AlertState) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Alert
	for _, alert := range s.alerts {
		if alert.OwnerID != ownerID {
			continue
		}
		if state != nil && alert.State != *state {
			continue
		}
		out = append(out, alert)
	}
	slices.SortFunc(out, func(a, b domain.Alert) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

var errBrokerDown = errors.New("broker down")

type memPublisher struct {
	mu       sync.Mutex
	events   []domain.NotificationEvent
	calls    int
	failNext int
	failAll  bool
}

func (p *memPublisher) Publish(ctx context.Context, event domain.NotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAll {
		return errBrokerDown
	}
	if p.failNext > 0 {
		p.failNext--
		return errBrokerDown
	}
	p.events = append(p.events, event)
	return nil
}

func (p *memPublisher) published() []domain.NotificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

type memIncidents struct {
	mu        sync.Mutex
	incidents []domain.Incident
}

func (r *memIncidents) Report(ctx context.Context, incident domain.Incident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, incident)
}

func (r *memIncidents) all() []domain.Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.incidents)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func tickAt(price string) domain.Tick {
	return domain.Tick{Instrument: "BTCUSDT", Price: decimal.RequireFromString(price), Timestamp: time.Now()}
}
