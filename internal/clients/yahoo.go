// Package clients holds the concrete implementations of the capability
// interfaces: market data, news, filings and the language model.
package clients

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/capabilities"
)

// historyCacheTTL bounds how stale a cached price series may be. The alert
// path re-reads history right after the technical stage; this keeps that
// second read off the wire.
const historyCacheTTL = 5 * time.Minute

type cachedHistory struct {
	points    []capabilities.PricePoint
	fetchedAt time.Time
}

// YahooClient serves quotes and price history from Yahoo Finance.
type YahooClient struct {
	log zerolog.Logger
	now func() time.Time

	mu      sync.Mutex
	history map[string]cachedHistory
}

// NewYahooClient creates a Yahoo Finance market data client.
func NewYahooClient(log zerolog.Logger) *YahooClient {
	return &YahooClient{
		log:     log.With().Str("component", "yahoo").Logger(),
		now:     time.Now,
		history: make(map[string]cachedHistory),
	}
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || len(symbol) > 12 {
		return "", fmt.Errorf("%w: %q", capabilities.ErrInvalidSymbol, symbol)
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' && r != '^' {
			return "", fmt.Errorf("%w: %q", capabilities.ErrInvalidSymbol, symbol)
		}
	}
	return symbol, nil
}

// Quote returns the current market price for a symbol.
func (c *YahooClient) Quote(ctx context.Context, symbol string) (float64, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return 0, err
	}

	var price float64
	err = c.call(ctx, func() error {
		q, err := quote.Get(symbol)
		if err != nil {
			return fmt.Errorf("%w: quote %s: %v", capabilities.ErrUnavailable, symbol, err)
		}
		if q == nil {
			return fmt.Errorf("%w: %s", capabilities.ErrNotFound, symbol)
		}
		price = q.RegularMarketPrice
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.log.Debug().Str("symbol", symbol).Float64("price", price).Msg("Quote fetched")
	return price, nil
}

// History returns daily bars covering the window, oldest first.
func (c *YahooClient) History(ctx context.Context, symbol string, window time.Duration) ([]capabilities.PricePoint, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	cacheKey := historyKey(symbol, window)
	c.mu.Lock()
	if cached, ok := c.history[cacheKey]; ok && c.now().Sub(cached.fetchedAt) < historyCacheTTL {
		c.mu.Unlock()
		return cached.points, nil
	}
	c.mu.Unlock()

	end := c.now()
	start := end.Add(-window)

	var points []capabilities.PricePoint
	err = c.call(ctx, func() error {
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}

		iter := chart.Get(params)
		for iter.Next() {
			bar := iter.Bar()
			open, _ := bar.Open.Float64()
			high, _ := bar.High.Float64()
			low, _ := bar.Low.Float64()
			closePrice, _ := bar.Close.Float64()
			points = append(points, capabilities.PricePoint{
				Date:   time.Unix(int64(bar.Timestamp), 0).UTC(),
				Open:   open,
				High:   high,
				Low:    low,
				Close:  closePrice,
				Volume: int64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("%w: history %s: %v", capabilities.ErrUnavailable, symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.history[cacheKey] = cachedHistory{points: points, fetchedAt: c.now()}
	c.mu.Unlock()

	c.log.Debug().Str("symbol", symbol).Int("bars", len(points)).Msg("History fetched")
	return points, nil
}

func historyKey(symbol string, window time.Duration) string {
	return fmt.Sprintf("%s/%d", symbol, int64(window.Hours()))
}

// call runs fn on its own goroutine so callers can bail out on context
// cancellation; the finance API itself takes no context.
func (c *YahooClient) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
