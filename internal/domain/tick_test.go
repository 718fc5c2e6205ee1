package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTick(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := func() time.Time { return fixed }

	tick, err := ParseTick(RawTick{Instrument: "BTCUSDT", Price: " 50500.25 "}, now)
	require.NoError(t, err)
	assert.Equal(t, "50500.25", tick.Price.String())
	assert.Equal(t, "BTCUSDT", tick.Instrument)
	assert.Equal(t, fixed, tick.Timestamp)

	stamp := fixed.Add(-time.Minute)
	tick, err = ParseTick(RawTick{Price: "1", Timestamp: &stamp}, now)
	require.NoError(t, err)
	assert.Equal(t, stamp, tick.Timestamp)
}

func TestParseTickRejectsMalformed(t *testing.T) {
	now := time.Now
	for _, price := range []string{"", "   ", "NaN", "nan", "Inf", "-Inf", "abc", "0", "-12.5"} {
		t.Run(price, func(t *testing.T) {
			_, err := ParseTick(RawTick{Price: price}, now)
			assert.ErrorIs(t, err, ErrInvalidTick)
		})
	}
}
