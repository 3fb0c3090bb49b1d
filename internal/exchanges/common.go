package exchanges

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cryptotick/internal/fx"
	"cryptotick/internal/model"
)

// httpClient is shared by every adapter's REST backfill calls: a single
// *http.Client with a fixed timeout reused across all venues rather than
// one client per request.
var httpClient = &http.Client{Timeout: 20 * time.Second}

// getJSON issues a GET request and unmarshals the body into out.
func getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, truncate(body, 300))
	}
	return json.Unmarshal(body, out)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

// candleFromStrings builds a Candle from string-encoded OHLCV fields, the
// common shape every REST kline endpoint in this package returns.
func candleFromStrings(symbol model.Symbol, tf model.Timeframe, openTimeUnixS int64, open, high, low, close, volume string) (model.Candle, error) {
	o, err := fx.Parse(open)
	if err != nil {
		return model.Candle{}, fmt.Errorf("open: %w", err)
	}
	h, err := fx.Parse(high)
	if err != nil {
		return model.Candle{}, fmt.Errorf("high: %w", err)
	}
	l, err := fx.Parse(low)
	if err != nil {
		return model.Candle{}, fmt.Errorf("low: %w", err)
	}
	c, err := fx.Parse(close)
	if err != nil {
		return model.Candle{}, fmt.Errorf("close: %w", err)
	}
	v, err := fx.Parse(volume)
	if err != nil {
		return model.Candle{}, fmt.Errorf("volume: %w", err)
	}
	return model.Candle{
		Symbol:       symbol,
		Timeframe:    tf,
		OpenTimeUTCS: openTimeUnixS,
		Open:         o,
		High:         h,
		Low:          l,
		Close:        c,
		Volume:       v,
	}, nil
}

// nativeGranularity looks up a venue's native wire spelling for tf in table,
// reporting false when the venue has no native bar for that timeframe (the
// backfill planner then falls back to up-aggregation).
func nativeGranularity(table map[model.Timeframe]string, tf model.Timeframe) (string, bool) {
	v, ok := table[tf]
	return v, ok
}
