package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"levelcore/internal/model"
)

// RESTConfig configures the REST polling adapter. Unlike the teacher's
// Angel One session, a public perpetual-futures OHLCV/ticker surface
// needs no login/token exchange — every field here is either a base
// URL or an HTTP tuning knob.
type RESTConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultRESTConfig points at a generic public futures REST surface;
// operators override BaseURL per venue via config.
var DefaultRESTConfig = RESTConfig{BaseURL: "https://fapi.example.com", Timeout: 7 * time.Second}

// REST polls an exchange's public REST API for OHLCV candles and last
// traded price. It holds no credentials: both endpoints this core
// needs are public market-data surfaces.
type REST struct {
	cfg    RESTConfig
	client *http.Client
}

// NewREST creates a REST adapter against cfg.
func NewREST(cfg RESTConfig) *REST {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRESTConfig.Timeout
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRESTConfig.BaseURL
	}
	return &REST{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type klineRow [12]json.RawMessage

// FetchOHLCV fetches up to limit candles for symbol/tf, optionally
// bounded to candles at or after since.
func (r *REST) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, since time.Time, limit int) ([]model.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("exchange: unsupported timeframe %q", tf)
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(tf))
	q.Set("limit", strconv.Itoa(limit))
	if !since.IsZero() {
		q.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}

	endpoint := r.cfg.BaseURL + "/fapi/v1/klines?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch ohlcv %s %s: %w", symbol, tf, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange: fetch ohlcv %s %s: status %d", symbol, tf, resp.StatusCode)
	}

	var rows []klineRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("exchange: decode klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	now := time.Now().UTC()
	for _, row := range rows {
		c, err := parseKline(row, symbol, tf)
		if err != nil {
			return nil, err
		}
		c.UpdatedAt = now
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKline(row klineRow, symbol string, tf model.Timeframe) (model.Candle, error) {
	var openTimeMs int64
	var openStr, highStr, lowStr, closeStr, volStr string
	if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
		return model.Candle{}, fmt.Errorf("exchange: parse kline open time: %w", err)
	}
	fields := []*string{&openStr, &highStr, &lowStr, &closeStr, &volStr}
	indices := []int{1, 2, 3, 4, 5}
	for i, idx := range indices {
		if err := json.Unmarshal(row[idx], fields[i]); err != nil {
			return model.Candle{}, fmt.Errorf("exchange: parse kline field %d: %w", idx, err)
		}
	}

	open, _ := strconv.ParseFloat(openStr, 64)
	high, _ := strconv.ParseFloat(highStr, 64)
	low, _ := strconv.ParseFloat(lowStr, 64)
	cl, _ := strconv.ParseFloat(closeStr, 64)
	vol, _ := strconv.ParseFloat(volStr, 64)

	return model.Candle{
		Symbol: symbol,
		TF:     tf,
		TS:     time.UnixMilli(openTimeMs).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cl,
		Volume: vol,
	}, nil
}

type tickerResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchTicker fetches the last traded price for symbol.
func (r *REST) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	endpoint := r.cfg.BaseURL + "/fapi/v1/ticker/price?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("exchange: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("exchange: fetch ticker %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("exchange: fetch ticker %s: status %d", symbol, resp.StatusCode)
	}

	var tr tickerResp
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return 0, fmt.Errorf("exchange: decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(tr.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("exchange: parse ticker price %q: %w", tr.Price, err)
	}
	return price, nil
}
