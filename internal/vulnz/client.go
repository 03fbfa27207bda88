package vulnz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/cache"
	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"go.uber.org/zap"
)

// Config configures a Client. BaseURL and APIKey are captured once.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Cache      *cache.WebsiteCache
	SortOrder  website.SortOrder
	UserAgent  string
	Logger     *zap.Logger
}

// Client talks to the Vulnz websites API.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	cache     *cache.WebsiteCache
	sortOrder website.SortOrder
	header    http.Header
	logger    *zap.Logger
}

// NewClient builds a client from cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.APIRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		clone := *httpClient
		clone.Timeout = timeout
		httpClient = &clone
	}

	sortOrder := cfg.SortOrder
	if sortOrder == "" {
		sortOrder = website.SortByTitle
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = constants.UserAgent
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	header := http.Header{}
	header.Set("X-Api-Key", cfg.APIKey)
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set("Accept", "application/json")
	header.Set("User-Agent", userAgent)

	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    cfg.APIKey,
		http:      httpClient,
		cache:     cfg.Cache,
		sortOrder: sortOrder,
		header:    header,
		logger:    logger.Named("vulnz"),
	}
}

// BaseURL returns the API base URL in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckAvailability explains why the client cannot be used, or returns nil.
func (c *Client) CheckAvailability() error {
	return CheckEndpoint(c.baseURL, c.apiKey)
}

// IsAvailable reports whether the configuration allows API calls.
func (c *Client) IsAvailable() bool {
	return c.CheckAvailability() == nil
}

// CreateOrUpdateWebsite upserts the website and reports success.
func (c *Client) CreateOrUpdateWebsite(ctx context.Context, domain string, upd *website.Update) bool {
	return c.UpsertWebsite(ctx, domain, upd) == nil
}

// UpsertWebsite creates the website if the API does not know it, then
// updates it. The cached record for domain is dropped on every outcome.
func (c *Client) UpsertWebsite(ctx context.Context, domain string, upd *website.Update) error {
	defer c.cache.Invalidate(context.WithoutCancel(ctx), domain)

	if !website.ValidHostname(domain) {
		c.logger.Debug("invalid domain name provided", zap.String("domain", domain))
		return fmt.Errorf("%w: %q", sharedErrors.ErrInvalidDomain, domain)
	}
	if err := c.CheckAvailability(); err != nil {
		c.logger.Debug("api client is not properly configured", zap.Error(err))
		return err
	}

	if err := c.ensureWebsite(ctx, domain, upd); err != nil {
		return err
	}

	putURL := c.websiteURL(domain)
	status, _, err := c.do(ctx, http.MethodPut, putURL, upd)
	if err != nil {
		c.logger.Debug("failed to update website", zap.String("domain", domain), zap.Error(err))
		return err
	}
	if status != http.StatusOK {
		err := &sharedErrors.StatusError{Method: http.MethodPut, URL: putURL, Code: status}
		c.logger.Debug("failed to update website", zap.String("domain", domain), zap.Int("status", status))
		return err
	}

	return nil
}

// ensureWebsite makes sure the API has a record for domain, creating it
// when the lookup answers 404.
func (c *Client) ensureWebsite(ctx context.Context, domain string, upd *website.Update) error {
	getURL := c.websiteURL(domain)
	status, _, err := c.do(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		c.logger.Debug("api GET request failed", zap.String("domain", domain), zap.Error(err))
		return err
	}

	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		postURL := c.baseURL + "/api/websites"
		status, _, err := c.do(ctx, http.MethodPost, postURL, website.CreateRequest{Domain: domain, Update: upd})
		if err != nil {
			c.logger.Debug("failed to create website", zap.String("domain", domain), zap.Error(err))
			return err
		}
		if status != http.StatusOK && status != http.StatusCreated {
			c.logger.Debug("failed to create website", zap.String("domain", domain), zap.Int("status", status))
			return &sharedErrors.StatusError{Method: http.MethodPost, URL: postURL, Code: status}
		}
		return nil
	default:
		c.logger.Debug("unexpected response code", zap.String("domain", domain), zap.Int("status", status))
		return &sharedErrors.StatusError{Method: http.MethodGet, URL: getURL, Code: status}
	}
}

// GetWebsite returns the website record, or nil on any failure.
func (c *Client) GetWebsite(ctx context.Context, domain string) *website.Record {
	rec, err := c.FetchWebsite(ctx, domain)
	if err != nil {
		return nil
	}
	return rec
}

// FetchWebsite returns the website record from the cache or the API.
// Extensions come back vulnerable first, then ordered by the configured key.
func (c *Client) FetchWebsite(ctx context.Context, domain string) (*website.Record, error) {
	if c.cache.Enabled() {
		if rec, ok := c.cache.Get(ctx, domain); ok {
			return rec, nil
		}
	}

	if !website.ValidHostname(domain) {
		c.logger.Debug("invalid domain name provided", zap.String("domain", domain))
		return nil, fmt.Errorf("%w: %q", sharedErrors.ErrInvalidDomain, domain)
	}
	if err := c.CheckAvailability(); err != nil {
		c.logger.Debug("api client is not properly configured", zap.Error(err))
		return nil, err
	}

	getURL := c.websiteURL(domain)
	status, body, err := c.do(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		c.logger.Debug("api request failed", zap.String("domain", domain), zap.Error(err))
		return nil, err
	}
	if status != http.StatusOK {
		c.logger.Debug("api returned unexpected status", zap.String("domain", domain), zap.Int("status", status))
		return nil, &sharedErrors.StatusError{Method: http.MethodGet, URL: getURL, Code: status}
	}

	var rec *website.Record
	if err := json.Unmarshal(body, &rec); err != nil || rec == nil {
		c.logger.Debug("api returned a malformed body", zap.String("domain", domain), zap.Error(err))
		if err == nil {
			err = errors.New("body is not a JSON object")
		}
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrMalformedResponse, err)
	}

	if rec.Extensions != nil {
		website.SortExtensions(rec.Extensions, c.sortOrder)
	}

	if c.cache.Enabled() {
		c.cache.Put(ctx, domain, rec, c.cache.TTL())
	}

	return rec, nil
}

func (c *Client) websiteURL(domain string) string {
	return fmt.Sprintf("%s/api/websites/%s", c.baseURL, url.PathEscape(domain))
}

// do sends one request and returns the status code and a size-limited body.
func (c *Client) do(ctx context.Context, method, target string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s body: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: create request: %v", sharedErrors.ErrTransport, err)
	}
	req.Header = c.header.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", sharedErrors.ErrTransport, method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read %s response: %v", sharedErrors.ErrTransport, method, err)
	}
	return resp.StatusCode, data, nil
}
