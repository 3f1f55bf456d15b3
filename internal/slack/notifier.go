package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feed_notifier/internal/model"
)

const maxErrorBody = 64 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeliveryError reports a payload the webhook did not accept.
type DeliveryError struct {
	Channel    string
	Chunk      int
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver chunk %d to %s: %v", e.Chunk, e.Channel, e.Err)
	}
	return fmt.Sprintf("deliver chunk %d to %s: status %d: %s", e.Chunk, e.Channel, e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Options configures a Notifier.
type Options struct {
	WebhookURL string
	Username   string
	Intro      string
	// Channel maps a tag to its destination channel.
	Channel func(tag string) string
	Timeout time.Duration
}

// Notifier posts tag updates to a Slack incoming webhook.
type Notifier struct {
	client HTTPClient
	opts   Options
	log    *slog.Logger
}

// New creates a Notifier.
func New(client HTTPClient, opts Options, log *slog.Logger) *Notifier {
	return &Notifier{client: client, opts: opts, log: log}
}

// Notify posts every chunk of the bucket's update message. A failed chunk is
// logged and does not stop the remaining ones.
func (n *Notifier) Notify(ctx context.Context, bucket model.TagBucket) model.Delivery {
	channel := n.opts.Channel(bucket.Tag)
	payloads := BuildPayloads(channel, n.opts.Username, n.opts.Intro, bucket.Entries)

	var d model.Delivery
	for i, p := range payloads {
		if err := n.post(ctx, i, p); err != nil {
			d.Failed++
			n.log.Warn("slack delivery failed", "tag", bucket.Tag, "channel", channel, "chunk", i, "error", err)
			continue
		}
		d.Sent++
		n.log.Info("slack delivery succeeded", "tag", bucket.Tag, "channel", channel, "chunk", i, "blocks", len(p.Blocks))
	}
	return d
}

func (n *Notifier) post(ctx context.Context, chunk int, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return &DeliveryError{Channel: p.Channel, Chunk: chunk, Err: fmt.Errorf("encode payload: %w", err)}
	}

	if n.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.opts.Timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("payload", string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.opts.WebhookURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &DeliveryError{Channel: p.Channel, Chunk: chunk, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: p.Channel, Chunk: chunk, Err: fmt.Errorf("http post: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{Channel: p.Channel, Chunk: chunk, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
