package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"go.uber.org/zap"
)

const DefaultRESTURL = "https://api.binance.com"

// RESTSource polls the ticker price endpoint. It is the fallback feed for
// networks where the websocket endpoint is blocked.
type RESTSource struct {
	baseURL    string
	instrument string
	interval   time.Duration
	client     *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewRESTSource(baseURL, instrument string, interval, timeout time.Duration, logger *zap.Logger) *RESTSource {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &RESTSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instrument: strings.ToUpper(instrument),
		interval:   interval,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.Named("binance_rest"),
		now:        time.Now,
	}
}

// Subscribe fetches one price up front so a bad endpoint fails startup,
// then polls every interval until ctx is done.
func (s *RESTSource) Subscribe(ctx context.Context) (<-chan domain.RawTick, error) {
	first, err := s.LatestPrice(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.RawTick)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		next := &first
		for {
			if next != nil {
				select {
				case out <- *next:
				case <-ctx.Done():
					return
				}
				next = nil
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			tick, err := s.LatestPrice(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("ticker poll failed", zap.Error(err))
				}
				continue
			}
			next = &tick
		}
	}()
	return out, nil
}

func (s *RESTSource) LatestPrice(ctx context.Context) (domain.RawTick, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", s.baseURL, url.QueryEscape(s.instrument))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.RawTick{}, err
	}

	start := time.Now()
	response, err := s.client.Do(request)
	if err != nil {
		return domain.RawTick{}, err
	}
	defer response.Body.Close()

	s.logger.Debug(
		"ticker request complete",
		zap.String("url", endpoint),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return domain.RawTick{}, fmt.Errorf("ticker error: status %d", response.StatusCode)
	}

	var payload tickerPriceResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return domain.RawTick{}, fmt.Errorf("decode ticker: %w", err)
	}

	ts := s.now().UTC()
	instrument := payload.Symbol
	if instrument == "" {
		instrument = s.instrument
	}
	return domain.RawTick{Instrument: instrument, Price: string(payload.Price), Timestamp: &ts}, nil
}
