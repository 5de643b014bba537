// Package nse fetches last traded prices from the NSE quote API.
//
// The upstream rejects clients that have not first visited the homepage, so
// the fetcher keeps a cookie jar and primes the session lazily, re-priming
// whenever a request is answered with 403.
package nse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "nse-monitor/internal/errors"
	"nse-monitor/internal/logging"
	"nse-monitor/internal/models"
	"nse-monitor/internal/resilience"
)

const (
	DefaultBaseURL   = "https://www.nseindia.com"
	DefaultQuotePath = "/api/quote-equity"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	maxBodyBytes = 4 << 20
)

// Config holds fetcher settings.
type Config struct {
	BaseURL        string
	QuotePath      string
	UserAgent      string
	PrimeTimeout   time.Duration
	RequestTimeout time.Duration
	Backoff        resilience.Backoff
	ThrottleMin    time.Duration
	ThrottleMax    time.Duration
	PrimeDelayMin  time.Duration
	PrimeDelayMax  time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		QuotePath:      DefaultQuotePath,
		UserAgent:      DefaultUserAgent,
		PrimeTimeout:   5 * time.Second,
		RequestTimeout: 10 * time.Second,
		Backoff:        resilience.DefaultBackoff(),
		ThrottleMin:    300 * time.Millisecond,
		ThrottleMax:    time.Second,
		PrimeDelayMin:  200 * time.Millisecond,
		PrimeDelayMax:  600 * time.Millisecond,
	}
}

// Result is the typed outcome of one price lookup.
type Result struct {
	Symbol   string
	Price    float64
	Attempts int
	Err      *apperrors.FetchError
}

// OK reports whether a price was obtained.
func (r Result) OK() bool {
	return r.Err == nil
}

// Fetcher retrieves prices from the upstream quote endpoint.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
	rand   *resilience.Rand
	sleep  resilience.Sleeper

	mu     sync.Mutex
	primed bool
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. A cookie jar is attached if the
// client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithSleeper replaces the sleeper used for throttling, priming delay and backoff.
func WithSleeper(s resilience.Sleeper) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// WithRand sets the jitter source.
func WithRand(r *resilience.Rand) Option {
	return func(f *Fetcher) { f.rand = r }
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg Config, logger zerolog.Logger, opts ...Option) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.QuotePath == "" {
		cfg.QuotePath = DefaultQuotePath
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{},
		logger: logging.WithComponent(logger, "fetcher"),
		rand:   resilience.NewRand(time.Now().UnixNano()),
		sleep:  resilience.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		f.client.Jar = jar
	}

	f.cfg.Backoff.Sleep = f.sleep
	f.cfg.Backoff.Rand = f.rand
	f.cfg.Backoff.ShouldRetry = func(err error) bool {
		var fe *apperrors.FetchError
		return apperrors.As(err, &fe) && fe.Reason.Retryable()
	}

	return f, nil
}

// Primed reports whether the session currently holds homepage cookies.
func (f *Fetcher) Primed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.primed
}

// Prime visits the homepage to obtain session cookies. Any completed
// response counts as primed; a transport failure leaves the session unprimed
// and is retried on the next request. force discards the current state.
func (f *Fetcher) Prime(ctx context.Context, force bool) {
	f.mu.Lock()
	if f.primed && !force {
		f.mu.Unlock()
		return
	}
	f.primed = false
	f.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.PrimeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.cfg.BaseURL, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Failed to build priming request")
		return
	}
	f.setHeaders(req, false)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Session priming failed")
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()

	f.mu.Lock()
	f.primed = true
	f.mu.Unlock()

	f.logger.Debug().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("Session primed")
	_ = f.sleep(ctx, f.rand.Between(f.cfg.PrimeDelayMin, f.cfg.PrimeDelayMax))
}

// GetPrice returns the last traded price of symbol, or false when no price
// could be obtained this time. It never returns an error.
func (f *Fetcher) GetPrice(ctx context.Context, symbol string) (float64, bool) {
	res := f.Fetch(ctx, symbol)
	return res.Price, res.OK()
}

// Fetch looks up symbol with priming, retry and backoff, and reports the
// typed outcome.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) Result {
	symbol = models.NormalizeSymbol(symbol)
	res := Result{Symbol: symbol}
	logger := logging.WithSymbol(f.logger, symbol)

	f.Prime(ctx, false)

	err := f.cfg.Backoff.Execute(ctx, func(attempt int) error {
		res.Attempts = attempt
		price, ferr := f.fetchOnce(ctx, symbol)
		if ferr != nil {
			switch ferr.Reason {
			case apperrors.FetchBlocked:
				logger.Warn().Int("attempt", attempt).Msg("Received 403, re-priming session")
				f.Prime(ctx, true)
			case apperrors.FetchNotFound:
				logger.Warn().Msg("Symbol not found on NSE")
			default:
				logger.Warn().Err(ferr).Int("attempt", attempt).Msg("Quote request failed")
			}
			return ferr
		}
		res.Price = price
		return nil
	})

	if err == nil {
		logging.LogPrice(logger, symbol, res.Price)
		_ = f.sleep(ctx, f.rand.Between(f.cfg.ThrottleMin, f.cfg.ThrottleMax))
		return res
	}

	var fe *apperrors.FetchError
	switch {
	case ctx.Err() != nil:
		res.Err = apperrors.NewFetchError(symbol, apperrors.FetchCancelled, 0, ctx.Err())
	case apperrors.As(err, &fe) && fe.Reason.Retryable():
		res.Err = apperrors.NewFetchError(symbol, apperrors.FetchExhausted, fe.Status, fe)
	case apperrors.As(err, &fe):
		res.Err = fe
	default:
		res.Err = apperrors.NewFetchError(symbol, apperrors.FetchTransport, 0, err)
	}
	res.Price = 0
	return res
}

type quoteResponse struct {
	PriceInfo *struct {
		LastPrice *flexFloat `json:"lastPrice"`
	} `json:"priceInfo"`
}

// flexFloat accepts both JSON numbers and numeric strings such as "1,234.50".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func (f *Fetcher) quoteURL(symbol string) string {
	return f.cfg.BaseURL + f.cfg.QuotePath + "?symbol=" + url.QueryEscape(symbol)
}

func (f *Fetcher) fetchOnce(ctx context.Context, symbol string) (float64, *apperrors.FetchError) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	endpoint := f.quoteURL(symbol)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, apperrors.NewFetchError(symbol, apperrors.FetchTransport, 0, err)
	}
	f.setHeaders(req, f.Primed())

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		logging.LogAPICall(f.logger, http.MethodGet, f.cfg.QuotePath, 0, time.Since(start), err)
		if ctx.Err() != nil {
			return 0, apperrors.NewFetchError(symbol, apperrors.FetchCancelled, 0, ctx.Err())
		}
		return 0, apperrors.NewFetchError(symbol, apperrors.FetchTransport, 0, err)
	}
	defer resp.Body.Close()
	logging.LogAPICall(f.logger, http.MethodGet, f.cfg.QuotePath, resp.StatusCode, time.Since(start), nil)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, apperrors.NewFetchError(symbol, apperrors.FetchNotFound, resp.StatusCode, nil)
	case http.StatusForbidden:
		return 0, apperrors.NewFetchError(symbol, apperrors.FetchBlocked, resp.StatusCode, nil)
	default:
		return 0, apperrors.NewFetchError(symbol, apperrors.FetchBadStatus, resp.StatusCode, nil)
	}

	var payload quoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return 0, apperrors.NewFetchError(symbol, apperrors.FetchBadBody, resp.StatusCode, err)
	}
	if payload.PriceInfo == nil || payload.PriceInfo.LastPrice == nil {
		return 0, apperrors.NewFetchError(symbol, apperrors.FetchNoPrice, resp.StatusCode, nil)
	}

	price := float64(*payload.PriceInfo.LastPrice)
	if !models.ValidPrice(price) {
		return 0, apperrors.NewFetchError(symbol, apperrors.FetchNoPrice, resp.StatusCode, fmt.Errorf("%w: unusable price %v", apperrors.ErrNoPrice, price))
	}
	return price, nil
}

func (f *Fetcher) setHeaders(req *http.Request, withReferer bool) {
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if withReferer {
		req.Header.Set("Referer", f.cfg.BaseURL)
	}
}
