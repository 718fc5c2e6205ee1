package usecase

import (
	"errors"
	"iter"
	"testing"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertsOf(alerts ...domain.Alert) iter.Seq2[domain.Alert, error] {
	return func(yield func(domain.Alert, error) bool) {
		for _, alert := range alerts {
			if !yield(alert, nil) {
				return
			}
		}
	}
}

func mkAlert(id uint, target string, condition domain.TriggerCondition) domain.Alert {
	return domain.Alert{
		ID:          id,
		TargetPrice: decimal.RequireFromString(target),
		Condition:   condition,
		State:       domain.AlertStateCreated,
	}
}

func collect(t *testing.T, seq iter.Seq2[Crossing, error]) []uint {
	t.Helper()
	var ids []uint
	for crossing, err := range seq {
		require.NoError(t, err)
		ids = append(ids, crossing.Alert.ID)
	}
	return ids
}

func TestCrossed(t *testing.T) {
	above := mkAlert(1, "100", domain.ConditionAbove)
	below := mkAlert(2, "100", domain.ConditionBelow)

	tests := []struct {
		name  string
		alert domain.Alert
		price string
		want  bool
	}{
		{"above equal", above, "100", false},
		{"above by a cent", above, "100.01", true},
		{"above under", above, "99.99", false},
		{"below equal", below, "100", false},
		{"below by a cent", below, "99.99", true},
		{"below over", below, "100.01", false},
		{"unknown condition", mkAlert(3, "100", "sideways"), "1000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Crossed(tt.alert, decimal.RequireFromString(tt.price)))
		})
	}
}

func TestMatchKeepsScanOrderAndIsPure(t *testing.T) {
	input := []domain.Alert{
		mkAlert(5, "10", domain.ConditionAbove),
		mkAlert(2, "30", domain.ConditionBelow),
		mkAlert(9, "25", domain.ConditionAbove),
		mkAlert(1, "20", domain.ConditionBelow),
		mkAlert(7, "15", domain.ConditionAbove),
	}
	price := decimal.RequireFromString("20")

	first := collect(t, Match(price, alertsOf(input...)))
	second := collect(t, Match(price, alertsOf(input...)))

	assert.Equal(t, []uint{5, 2, 7}, first)
	assert.Equal(t, first, second)
}

func TestMatchCarriesObservedPrice(t *testing.T) {
	price := decimal.RequireFromString("50500")
	for crossing, err := range Match(price, alertsOf(mkAlert(1, "50000", domain.ConditionAbove))) {
		require.NoError(t, err)
		assert.True(t, crossing.ObservedPrice.Equal(price))
	}
}

func TestMatchPassesScanErrorsThrough(t *testing.T) {
	boom := errors.New("row decode")
	seq := func(yield func(domain.Alert, error) bool) {
		if !yield(mkAlert(1, "10", domain.ConditionAbove), nil) {
			return
		}
		if !yield(domain.Alert{}, boom) {
			return
		}
		yield(mkAlert(2, "10", domain.ConditionAbove), nil)
	}

	var ids []uint
	var errs []error
	for crossing, err := range Match(decimal.RequireFromString("11"), seq) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, crossing.Alert.ID)
	}
	assert.Equal(t, []uint{1, 2}, ids)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestMatchStopsWhenConsumerStops(t *testing.T) {
	pulled := 0
	seq := func(yield func(domain.Alert, error) bool) {
		for i := uint(1); i <= 10; i++ {
			pulled++
			if !yield(mkAlert(i, "1", domain.ConditionAbove), nil) {
				return
			}
		}
	}
	for range Match(decimal.RequireFromString("2"), seq) {
		break
	}
	assert.Equal(t, 1, pulled)
}
