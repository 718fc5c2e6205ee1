package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawTick is a feed record before validation. Price is kept as text so a
// malformed value can be rejected by ParseTick instead of by the decoder.
type RawTick struct {
	Instrument string
	Price      string
	Timestamp  *time.Time
}

type Tick struct {
	Instrument string
	Price      decimal.Decimal
	Timestamp  time.Time
}

// ParseTick validates a raw record. Empty, unparseable, NaN/Inf and
// non-positive prices are rejected with ErrInvalidTick.
func ParseTick(raw RawTick, now func() time.Time) (Tick, error) {
	text := strings.TrimSpace(raw.Price)
	if text == "" {
		return Tick{}, fmt.Errorf("%w: empty price", ErrInvalidTick)
	}
	price, err := decimal.NewFromString(text)
	if err != nil {
		return Tick{}, fmt.Errorf("%w: price %q: %v", ErrInvalidTick, raw.Price, err)
	}
	if !price.IsPositive() {
		return Tick{}, fmt.Errorf("%w: non-positive price %s", ErrInvalidTick, price.String())
	}

	tick := Tick{Instrument: raw.Instrument, Price: price}
	if raw.Timestamp != nil {
		tick.Timestamp = *raw.Timestamp
	} else {
		tick.Timestamp = now()
	}
	return tick, nil
}

type TickSource interface {
	// Subscribe returns a channel of raw ticks that is closed once ctx is
	// done. A failure to establish the first connection is returned.
	Subscribe(ctx context.Context) (<-chan RawTick, error)
}
