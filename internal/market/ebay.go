// Package market estimates card values from eBay sold listings.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/service"
)

// eBay endpoints and defaults.
const (
	DefaultBaseURL     = "https://api.ebay.com/buy/browse/v1"
	DefaultTokenURL    = "https://api.ebay.com/identity/v1/oauth2/token"
	DefaultScope       = "https://api.ebay.com/oauth/api_scope"
	DefaultMarketplace = "EBAY_US"
	DefaultSearchLimit = 50

	providerName = "ebay"
	soldFilter   = "buyingOptions:{FIXED_PRICE|AUCTION},itemEndDate:[..],priceCurrency:USD"
)

// ErrMissingCredentials is returned when no eBay app credentials are set.
var ErrMissingCredentials = errors.New("ebay app ID and cert ID are required")

// Config configures the eBay client.
type Config struct {
	HTTPClient  *http.Client
	AppID       string
	CertID      string
	BaseURL     string
	TokenURL    string
	Marketplace string
	Retry       service.RetryOptions
	Limit       int
}

// Price is an eBay amount. eBay sends the value as a decimal string.
type Price struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Amount parses the value, returning false for missing or malformed prices.
func (p Price) Amount() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ItemSummary is one listing from the browse search.
type ItemSummary struct {
	ItemID string `json:"itemId"`
	Title  string `json:"title"`
	Price  Price  `json:"price"`
}

type searchResponse struct {
	ItemSummaries []ItemSummary `json:"itemSummaries"`
	Total         int           `json:"total"`
}

// EbayClient searches eBay listings with an application token.
type EbayClient struct {
	client      *http.Client
	logger      *slog.Logger
	baseURL     string
	marketplace string
	retry       service.RetryOptions
	limit       int
}

// NewEbayClient creates a client. Tokens are fetched with the client
// credentials grant and reused until they expire.
func NewEbayClient(cfg Config, logger *slog.Logger) (*EbayClient, error) {
	if cfg.AppID == "" || cfg.CertID == "" {
		return nil, ErrMissingCredentials
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Marketplace == "" {
		cfg.Marketplace = DefaultMarketplace
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultSearchLimit
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		}
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.CertID,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{DefaultScope},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, cfg.HTTPClient)

	return &EbayClient{
		client:      cc.Client(tokenCtx),
		logger:      logger.With("provider", providerName),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		marketplace: cfg.Marketplace,
		retry:       cfg.Retry,
		limit:       cfg.Limit,
	}, nil
}

// Search returns sold listings matching query, most recent first.
func (c *EbayClient) Search(ctx context.Context, query string) ([]ItemSummary, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("filter", soldFilter)
	params.Set("sort", "endDate")
	params.Set("limit", strconv.Itoa(c.limit))
	endpoint := c.baseURL + "/item_summary/search?" + params.Encode()

	var result searchResponse
	err := common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err), Retryable: false}
		}
		req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.marketplace)

		resp, err := c.client.Do(req)
		if err != nil {
			return classifyError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return common.ClassifyTransportError(providerName, fmt.Errorf("failed to read response: %w", err))
		}
		if resp.StatusCode != http.StatusOK {
			return common.ProviderErrorFromStatus(providerName, resp.StatusCode, string(body))
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return common.NewProviderError(providerName, common.KindBadResponse, fmt.Errorf("failed to parse search response: %w", err))
		}
		return nil
	}, c.retry)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("eBay search complete", "query", query, "items", len(result.ItemSummaries))
	return result.ItemSummaries, nil
}

// classifyError treats a rejected token request as an auth failure so it is
// not retried.
func classifyError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &common.ProviderError{
			Provider:   providerName,
			Kind:       common.KindAuth,
			StatusCode: status,
			Err:        fmt.Errorf("token request failed: %w", err),
		}
	}
	return common.ClassifyTransportError(providerName, fmt.Errorf("request failed: %w", err))
}
