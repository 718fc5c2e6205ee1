package binance

import (
	"bytes"
	"encoding/json"
	"strings"
)

// combinedMessage wraps every frame on the /stream endpoint.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineEvent struct {
	EventType string        `json:"e"`
	EventTime int64         `json:"E"`
	Symbol    string        `json:"s"`
	Kline     *klinePayload `json:"k"`
}

type klinePayload struct {
	Interval string    `json:"i"`
	Close    priceText `json:"c"`
	Closed   bool      `json:"x"`
}

type tickerPriceResponse struct {
	Symbol string    `json:"symbol"`
	Price  priceText `json:"price"`
}

// priceText keeps a price as the text the exchange sent. Quoted and bare
// numbers are both accepted; validation happens later.
type priceText string

func (p *priceText) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		*p = priceText(inner)
		return nil
	}
	*p = priceText(trimmed)
	return nil
}
