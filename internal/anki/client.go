// Package anki is a client for the AnkiConnect request/response service.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/starford/cardsync/internal/apperr"
)

const (
	// DefaultURL is where AnkiConnect listens by default.
	DefaultURL = "http://127.0.0.1:8765"
	// APIVersion is the AnkiConnect protocol version sent with every request.
	APIVersion = 6
)

// Options configures a Client.
type Options struct {
	URL        string
	Timeout    time.Duration // per request; 0 means 30s
	Retries    int           // extra attempts after a transport failure
	RetryDelay time.Duration
	HTTPClient *http.Client // overrides Timeout when set
}

// Client issues AnkiConnect actions over HTTP.
type Client struct {
	url     string
	retries int
	delay   time.Duration
	logger  *slog.Logger
	do      func(*http.Request) (*http.Response, error)
}

// New creates a Client from opts.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Client{
		url:     opts.URL,
		retries: opts.Retries,
		delay:   opts.RetryDelay,
		logger:  logger,
		do:      hc.Do,
	}
}

type request struct {
	Action  string         `json:"action"`
	Params  map[string]any `json:"params"`
	Version int            `json:"version"`
}

// transportError marks failures that never produced a well-formed reply and
// may succeed when retried.
type transportError struct {
	status int
	err    error
}

func (e *transportError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("anki: upstream status %d", e.status)
	}
	return fmt.Sprintf("anki: transport: %v", e.err)
}

func (e *transportError) Unwrap() error { return e.err }

// Invoke sends action with params and decodes the result into out (when non-nil).
// A malformed envelope or a non-null error field yields apperr.ErrStoreProtocol.
func (c *Client) Invoke(ctx context.Context, action string, params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(request{Action: action, Params: params, Version: APIVersion})
	if err != nil {
		return fmt.Errorf("anki: encode %s: %w", action, err)
	}

	attempts := c.retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		raw, err := c.send(ctx, body)
		if err == nil {
			return decodeEnvelope(action, raw, out)
		}
		lastErr = err
		if attempt+1 < attempts && shouldRetry(ctx, err) {
			c.logger.Warn("anki: request failed, retrying",
				slog.String("action", action),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			if err := sleepWithCtx(ctx, c.delay); err != nil {
				return err
			}
			continue
		}
		break
	}
	return fmt.Errorf("anki: %s: %w", action, lastErr)
}

func (c *Client) send(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout {
		return nil, &transportError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", apperr.ErrStoreProtocol, resp.StatusCode)
	}
	return raw, nil
}

// decodeEnvelope enforces the {error, result} reply shape.
func decodeEnvelope(action string, raw []byte, out any) error {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %s: response is not a JSON object", apperr.ErrStoreProtocol, action)
	}
	if len(env) != 2 {
		return fmt.Errorf("%w: %s: response has an unexpected number of fields", apperr.ErrStoreProtocol, action)
	}
	rawErr, ok := env["error"]
	if !ok {
		return fmt.Errorf("%w: %s: response is missing required error field", apperr.ErrStoreProtocol, action)
	}
	rawResult, ok := env["result"]
	if !ok {
		return fmt.Errorf("%w: %s: response is missing required result field", apperr.ErrStoreProtocol, action)
	}
	if !isNull(rawErr) {
		var msg string
		if err := json.Unmarshal(rawErr, &msg); err != nil {
			msg = string(rawErr)
		}
		return fmt.Errorf("%w: %s: %s", apperr.ErrStoreProtocol, action, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rawResult, out); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", apperr.ErrStoreProtocol, action, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// shouldRetry retries transport failures only; cancellation and protocol
// errors are final.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var te *transportError
	return errors.As(err, &te)
}

func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
