package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRESTSourcePolls(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"49000.00000000"}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"50500.00000000"}`))
	}))
	defer server.Close()

	source := NewRESTSource(server.URL, "btcusdt", 10*time.Millisecond, time.Second, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := source.Subscribe(ctx)
	require.NoError(t, err)

	first := receive(t, ticks)
	assert.Equal(t, "49000.00000000", first.Price)
	assert.Equal(t, "BTCUSDT", first.Instrument)
	require.NotNil(t, first.Timestamp)
	assert.Equal(t, "50500.00000000", receive(t, ticks).Price)
}

func TestRESTSourceFailsFastOnBadEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	source := NewRESTSource(server.URL, "BTCUSDT", time.Second, time.Second, zaptest.NewLogger(t))
	_, err := source.Subscribe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "418")
}
