package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const DefaultStreamURL = "wss://stream.binance.com:9443/stream?streams=btcusdt@kline_1m"

var errNotKline = errors.New("not a kline event")

type WSConfig struct {
	URL         string
	Instrument  string
	ReadTimeout time.Duration
	// Backoff returns the wait before reconnect attempt n, n starting at 1.
	Backoff func(attempt int) time.Duration
}

// WSSource streams kline close prices. It implements domain.TickSource.
type WSSource struct {
	cfg    WSConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewWSSource(cfg WSConfig, logger *zap.Logger) *WSSource {
	if cfg.URL == "" {
		cfg.URL = DefaultStreamURL
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func(attempt int) time.Duration {
			return time.Second << min(attempt-1, 6)
		}
	}
	return &WSSource{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.Named("binance_ws"),
	}
}

// Subscribe dials the stream once and returns its error if that fails.
// Later disconnects are retried until ctx is done, at which point the
// channel is closed.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan domain.RawTick, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.RawTick)
	go s.run(ctx, conn, out)
	return out, nil
}

func (s *WSSource) connect(ctx context.Context) (*websocket.Conn, error) {
	s.logger.Info("ws connect start", zap.String("url", s.cfg.URL))
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		s.logger.Error("ws connect failed", zap.String("url", s.cfg.URL), zap.Error(err))
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	s.logger.Info("ws connect success", zap.String("url", s.cfg.URL))
	return conn, nil
}

func (s *WSSource) run(ctx context.Context, conn *websocket.Conn, out chan<- domain.RawTick) {
	defer close(out)
	for {
		err := s.readLoop(ctx, conn, out)
		if ctx.Err() != nil {
			s.logger.Info("ws stream stopped")
			return
		}
		s.logger.Warn("ws stream disconnected", zap.Error(err))

		conn = s.reconnect(ctx)
		if conn == nil {
			return
		}
	}
}

func (s *WSSource) reconnect(ctx context.Context) *websocket.Conn {
	for attempt := 1; ; attempt++ {
		delay := s.cfg.Backoff(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := s.connect(ctx)
		if err == nil {
			return conn
		}
		s.logger.Warn("ws reconnect failed", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	}
}

// readLoop owns conn and closes it on return.
func (s *WSSource) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- domain.RawTick) error {
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-stop:
		}
	}()

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, err := s.decodeMessage(data)
		if err != nil {
			s.logger.Debug("ws message ignored", zap.Error(err))
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeMessage accepts both the combined-stream envelope and a bare kline
// event. Frames that are not klines return errNotKline.
func (s *WSSource) decodeMessage(data []byte) (domain.RawTick, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return domain.RawTick{}, fmt.Errorf("empty message")
	}

	payload := trimmed
	var envelope combinedMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return domain.RawTick{}, fmt.Errorf("decode ws message: %w", err)
	}
	if len(envelope.Data) > 0 {
		payload = envelope.Data
	}

	var event klineEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.RawTick{}, fmt.Errorf("decode kline event: %w", err)
	}
	if event.Kline == nil {
		return domain.RawTick{}, errNotKline
	}

	tick := domain.RawTick{
		Instrument: s.cfg.Instrument,
		Price:      string(event.Kline.Close),
	}
	if event.Symbol != "" {
		tick.Instrument = strings.ToUpper(event.Symbol)
	}
	if event.EventTime > 0 {
		ts := time.UnixMilli(event.EventTime).UTC()
		tick.Timestamp = &ts
	}
	return tick, nil
}
