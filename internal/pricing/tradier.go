package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// IsPermanent reports whether retrying the request cannot help
// (4xx other than 429 Too Many Requests).
func (e *APIError) IsPermanent() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}

// TradierConfig configures a TradierFeed.
type TradierConfig struct {
	APIKey            string
	BaseURL           string // overrides the production/sandbox URL when set
	Sandbox           bool
	Timeout           time.Duration
	RequestsPerMinute int
}

// TradierFeed reads option chains from the Tradier market data API.
type TradierFeed struct {
	client  *http.Client
	apiKey  string
	baseURL string
	limiter *rate.Limiter
	logger  *logrus.Entry
}

// NewTradierFeed creates a feed. Zero limits fall back to the sandbox or
// production market-data quota.
func NewTradierFeed(cfg TradierConfig, logger *logrus.Logger) *TradierFeed {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	// Normalize once
	baseURL = strings.TrimRight(baseURL, "/")

	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		if cfg.Sandbox {
			perMinute = 120
		} else {
			perMinute = 500
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &TradierFeed{
		client:  &http.Client{Timeout: timeout},
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1),
		logger:  logger.WithField("component", "tradier"),
	}
}

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// optionChainResponse is the body of GET /markets/options/chains.
type optionChainResponse struct {
	Options *struct {
		Option singleOrArray[chainOption] `json:"option"`
	} `json:"options"`
}

type chainOption struct {
	Symbol     string          `json:"symbol"`
	OptionType string          `json:"option_type"`
	Strike     decimal.Decimal `json:"strike"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Last       decimal.Decimal `json:"last"`
}

func optionTypeName(t models.OptionType) string {
	if t == models.OptionCall {
		return "call"
	}
	return "put"
}

// OptionQuote fetches the chain for c's expiration and returns the quote at c's strike.
func (t *TradierFeed) OptionQuote(ctx context.Context, c Contract) (Quote, error) {
	params := url.Values{}
	params.Set("symbol", c.Symbol)
	params.Set("expiration", c.Expiration.Format("2006-01-02"))

	var resp optionChainResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, t.baseURL+"/markets/options/chains", params, &resp); err != nil {
		return Quote{}, fmt.Errorf("option chain for %s: %w", c, err)
	}
	if resp.Options == nil {
		return Quote{}, fmt.Errorf("%s: %w", c, ErrQuoteNotFound)
	}

	want := optionTypeName(c.Type)
	for _, o := range resp.Options.Option {
		if o.OptionType == want && o.Strike.Equal(c.Strike) {
			return Quote{Bid: o.Bid, Ask: o.Ask, Last: o.Last}, nil
		}
	}
	return Quote{}, fmt.Errorf("%s: %w", c, ErrQuoteNotFound)
}

// makeRequestCtx makes a rate-limited GET request and decodes the JSON body.
func (t *TradierFeed) makeRequestCtx(ctx context.Context, method, endpoint string,
	params url.Values, response any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "wheel-ledger/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s -> %s (retry-after: %s)", method, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s -> %s", method, string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil && err != io.EOF {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
