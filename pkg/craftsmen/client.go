package craftsmen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnsuccessful is returned when the API answers without status=true.
var ErrUnsuccessful = errors.New("craftsmen API reported failure")

// DefaultCrafts are the trades fetched when no explicit list is configured.
var DefaultCrafts = []string{
	"حداد",
	"نجار",
	"سباك",
	"كهربائي",
	"نقاش",
	"فني تكييف",
	"خراط",
}

type ClientConfig struct {
	APIURL    string
	Token     string // sent as a Bearer token; a "Bearer " prefix is accepted
	PageSize  int
	RateLimit float64 // requests per second
	Timeout   time.Duration
}

// Client talks to the craftsmen search API.
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

type searchRequest struct {
	Pagination int    `json:"pagination"`
	Page       int    `json:"page"`
	Craft      string `json:"craft"`
}

type searchResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.APIURL == "" {
		return nil, fmt.Errorf("craftsmen API URL is required")
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func (c *Client) authorization() string {
	if c.config.Token == "" {
		return ""
	}
	if strings.HasPrefix(c.config.Token, "Bearer ") {
		return c.config.Token
	}
	return "Bearer " + c.config.Token
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if auth := c.authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// FetchPage returns one page of craftsmen for a craft. Pages start at 1.
func (c *Client) FetchPage(ctx context.Context, craft string, page int) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(searchRequest{Pagination: c.config.PageSize, Page: page, Craft: craft})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s page %d: %w", craft, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("received status code %d for %s page %d: %s", resp.StatusCode, craft, page, strings.TrimSpace(string(msg)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode craftsmen response: %w", err)
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, out.Message)
	}

	var p Page
	if len(out.Data) > 0 && string(out.Data) != "null" {
		if err := json.Unmarshal(out.Data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode craftsmen page: %w", err)
		}
	}
	return &p, nil
}

// pingURL is the API base: the search URL without its last path segment,
// query or fragment.
func (c *Client) pingURL() (string, error) {
	u, err := url.Parse(c.config.APIURL)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}
	p := strings.TrimSuffix(u.Path, "/")
	if p != "" {
		p = path.Dir(p)
	}
	if p == "/" || p == "." {
		p = ""
	}
	u.Path, u.RawPath, u.RawQuery, u.Fragment = p, "", "", ""
	return u.String(), nil
}

// Ping issues a GET against the API base (the search URL without its last
// path segment) and returns the HTTP status code.
func (c *Client) Ping(ctx context.Context) (int, error) {
	target, err := c.pingURL()
	if err != nil {
		return 0, err
	}
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("craftsmen API returned %s", resp.Status)
	}
	return resp.StatusCode, nil
}
