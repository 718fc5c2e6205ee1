package usecase

import (
	"iter"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
)

// Crossing pairs an alert with the price that crossed it.
type Crossing struct {
	Alert         domain.Alert
	ObservedPrice decimal.Decimal
}

// Crossed is the strict-inequality predicate: equality never triggers.
func Crossed(alert domain.Alert, price decimal.Decimal) bool {
	switch alert.Condition {
	case domain.ConditionAbove:
		return price.GreaterThan(alert.TargetPrice)
	case domain.ConditionBelow:
		return price.LessThan(alert.TargetPrice)
	default:
		return false
	}
}

// Match lazily filters alerts down to the ones crossed by price, keeping
// input order. Scan errors are passed through so the caller decides
// whether to keep consuming. State is not re-checked here.
func Match(price decimal.Decimal, alerts iter.Seq2[domain.Alert, error]) iter.Seq2[Crossing, error] {
	return func(yield func(Crossing, error) bool) {
		for alert, err := range alerts {
			if err != nil {
				if !yield(Crossing{}, err) {
					return
				}
				continue
			}
			if !Crossed(alert, price) {
				continue
			}
			if !yield(Crossing{Alert: alert, ObservedPrice: price}, nil) {
				return
			}
		}
	}
}
