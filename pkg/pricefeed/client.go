// Package pricefeed reads the project token's USD price from a
// DexScreener-style HTTP endpoint.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultURL          = "https://api.dexscreener.com/latest/dex/tokens/"
	DefaultPollInterval = 10 * time.Second

	defaultTimeout  = 10 * time.Second
	defaultAttempts = 3
)

// tokensResponse is the subset of the DexScreener tokens response we read
type tokensResponse struct {
	Pairs []struct {
		PairAddress string `json:"pairAddress"`
		DexID       string `json:"dexId"`
		PriceUsd    string `json:"priceUsd"`
	} `json:"pairs"`
}

// Client fetches the latest price and, while watching, caches it
type Client struct {
	baseURL    string
	token      common.Address
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	log        *zap.Logger

	feed    event.Feed
	mu      sync.RWMutex
	current decimal.Decimal
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the attempts per fetch and the base backoff between them
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.backoff = backoff
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a price client for token
func New(baseURL string, token common.Address, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		attempts:   defaultAttempts,
		backoff:    time.Second,
		log:        zap.NewNop(),
		current:    decimal.Zero,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the first pair's USD price, retrying with exponential backoff
func (c *Client) Fetch(ctx context.Context) (decimal.Decimal, error) {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			delay := c.backoff * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		price, err := c.doFetch(ctx)
		if err == nil {
			return price, nil
		}
		lastErr = err
		c.log.Debug("price fetch attempt failed", zap.Int("attempt", i+1), zap.Error(err))
	}
	return decimal.Zero, lastErr
}

func (c *Client) doFetch(ctx context.Context) (decimal.Decimal, error) {
	url := strings.TrimRight(c.baseURL, "/") + "/" + strings.ToLower(c.token.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, err
	}

	var data tokensResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}
	if len(data.Pairs) == 0 {
		return decimal.Zero, fmt.Errorf("no trading pairs listed for %s", c.token.Hex())
	}

	price, err := decimal.NewFromString(data.Pairs[0].PriceUsd)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid priceUsd %q: %w", data.Pairs[0].PriceUsd, err)
	}
	return price, nil
}

// Latest returns the live price, or fallback when the feed fails or reports
// a non-positive price. It never returns an error.
func (c *Client) Latest(ctx context.Context, fallback decimal.Decimal) decimal.Decimal {
	price, err := c.Fetch(ctx)
	if err != nil || !price.IsPositive() {
		c.log.Debug("price feed unavailable, using fallback",
			zap.String("fallback", fallback.String()),
			zap.Error(err))
		return fallback
	}
	return price
}

// Current returns the most recent watched price
func (c *Client) Current() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Subscribe delivers each changed price while watching
func (c *Client) Subscribe(ch chan<- decimal.Decimal) event.Subscription {
	return c.feed.Subscribe(ch)
}

// Watch polls every interval until Stop, caching the price. fallback is
// consulted on every failed poll so a changed base price takes effect.
func (c *Client) Watch(ctx context.Context, interval time.Duration, fallback func() decimal.Decimal) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.poll(ctx, fallback)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.log.Debug("price polling stopped")
				return
			case <-ticker.C:
				c.poll(ctx, fallback)
			}
		}
	}()
}

func (c *Client) poll(ctx context.Context, fallback func() decimal.Decimal) {
	price := c.Latest(ctx, fallback())
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	old := c.current
	c.current = price
	c.mu.Unlock()

	if !old.Equal(price) {
		c.log.Info("token price updated", zap.String("price", price.String()), zap.String("old_price", old.String()))
		c.feed.Send(price)
	}
}

// Stop ends polling
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
}
