package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Client wraps the LINE Messaging API for profile lookups and replies.
//
// The SDK keeps a context on the shared client value, so ctx is not forwarded;
// calls are bounded by the HTTP client timeout instead.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

type options struct {
	endpoint   string
	httpClient *http.Client
}

type Option func(*options)

// WithEndpoint overrides the Messaging API base URL.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = strings.TrimSpace(endpoint)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// NewClient creates a Client authenticated with the channel access token.
func NewClient(channelToken string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(channelToken) == "" {
		return nil, errors.New("line: channel access token must not be empty")
	}
	o := options{httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	sdkOpts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(o.httpClient)}
	if o.endpoint != "" {
		sdkOpts = append(sdkOpts, messaging_api.WithEndpoint(o.endpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(channelToken, sdkOpts...)
	if err != nil {
		return nil, fmt.Errorf("line: create messaging api client: %w", err)
	}
	return &Client{api: api}, nil
}

// DisplayName returns the LINE profile display name of userID.
func (c *Client) DisplayName(_ context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("line: user id must not be empty")
	}
	profile, err := c.api.GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("line: get profile: %w", err)
	}
	if profile == nil {
		return "", errors.New("line: empty profile response")
	}
	return profile.DisplayName, nil
}

// Reply sends texts, in order, against a one-time reply token.
func (c *Client) Reply(_ context.Context, replyToken string, texts []string) error {
	if strings.TrimSpace(replyToken) == "" {
		return errors.New("line: reply token must not be empty")
	}
	if len(texts) == 0 {
		return errors.New("line: nothing to reply")
	}
	messages := make([]messaging_api.MessageInterface, 0, len(texts))
	for _, text := range texts {
		messages = append(messages, messaging_api.TextMessage{Text: text})
	}
	if _, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	}); err != nil {
		return fmt.Errorf("line: reply message: %w", err)
	}
	return nil
}
