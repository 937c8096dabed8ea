package hotpepper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"udon-bot/internal/domain"
)

const defaultBaseURL = "http://webservice.recruit.co.jp/hotpepper"

// ErrMissingResults is returned when the response body lacks results.shop.
var ErrMissingResults = errors.New("hotpepper: response missing results.shop")

// searchResponse is the subset of the Gourmet Search API response used here.
type searchResponse struct {
	Results *struct {
		Shop  *[]domain.Shop `json:"shop"`
		Error []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"results"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("hotpepper: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls the HotPepper Gourmet Search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if b := strings.TrimSpace(baseURL); b != "" {
			c.baseURL = b
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("hotpepper: api key must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func gourmetURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + "/gourmet/v1/"
}

// Search returns up to count shops in the large area matching keyword.
func (c *Client) Search(ctx context.Context, areaCode, keyword string, count int) ([]domain.Shop, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("large_area", areaCode)
	q.Set("keyword", keyword)
	q.Set("format", "json")
	q.Set("count", strconv.Itoa(count))
	endpoint := gourmetURL(c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("hotpepper: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.httpClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hotpepper: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		// The key is part of the query string; report the bare endpoint.
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: string(buf)}
	}

	var payload searchResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("hotpepper: decode response: %w", err)
	}
	if payload.Results == nil {
		return nil, ErrMissingResults
	}
	if len(payload.Results.Error) > 0 {
		e := payload.Results.Error[0]
		return nil, fmt.Errorf("hotpepper: api error %d: %s", e.Code, e.Message)
	}
	if payload.Results.Shop == nil {
		return nil, ErrMissingResults
	}
	return *payload.Results.Shop, nil
}
