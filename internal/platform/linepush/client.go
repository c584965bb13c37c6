// Package linepush is the client for the messaging collaborator that relays
// push messages to LINE. Delivery is best-effort: callers log failures and
// move on.
package linepush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/fx"

	cfgpkg "github.com/dogparkjp/paygate/pkg/config"
)

// Message is the collaborator's push contract.
type Message struct {
	UserID  string `json:"userId"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	LinkURL string `json:"linkUrl"`
}

// Pusher sends one push message.
type Pusher interface {
	Push(ctx context.Context, msg *Message) error
}

type Client struct {
	url  string
	http *http.Client
}

func New(cfg *cfgpkg.Config) *Client {
	return &Client{
		url:  cfg.Line.NotifyURL,
		http: &http.Client{Timeout: cfg.Line.Timeout},
	}
}

func (c *Client) Push(ctx context.Context, msg *Message) error {
	if c.url == "" {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send push message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push relay returned %d", resp.StatusCode)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(New, fx.As(new(Pusher))),
	),
)
