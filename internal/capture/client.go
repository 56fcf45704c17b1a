package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mossy-p/screen-relay/internal/logger"
	"github.com/mossy-p/screen-relay/internal/models"
)

// ErrUpstreamUnavailable means the capture process could not be reached or
// refused the request. Callers skip the current frame or command.
var ErrUpstreamUnavailable = errors.New("capture process unavailable")

// maxFrameBytes caps a single /frame response body.
const maxFrameBytes = 32 << 20

// Action is the kind of input command sent to the capture process
type Action string

const (
	ActionClick Action = "click"
	ActionKey   Action = "key"
)

// Command is one input command. A non-zero WindowID targets that window
// instead of the global endpoint.
type Command struct {
	Action    Action
	X, Y      int
	Key       string
	Modifiers []string
	WindowID  int
}

// Path returns the capture process endpoint for the command.
func (c Command) Path() string {
	if c.WindowID > 0 {
		return "/" + string(c.Action) + "-window"
	}
	return "/" + string(c.Action)
}

type pointerPayload struct {
	X          int `json:"x"`
	Y          int `json:"y"`
	CGWindowID int `json:"cgWindowID,omitempty"`
}

type keyPayload struct {
	Key        string   `json:"key"`
	Modifiers  []string `json:"modifiers,omitempty"`
	CGWindowID int      `json:"cgWindowID,omitempty"`
}

type captureDesktopPayload struct {
	Type  int  `json:"type"`
	Index int  `json:"index"`
	VP9   bool `json:"vp9"`
}

type captureWindowPayload struct {
	CGWindowID int  `json:"cgWindowID"`
	VP9        bool `json:"vp9"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Client talks JSON over HTTP to the native capture process.
type Client struct {
	baseURL  string
	http     *http.Client
	maxFrame int64
}

// NewClient creates a client for the capture process at baseURL. Every
// request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		maxFrame: maxFrameBytes,
	}
}

// Frame fetches the most recent encoded frame. A body larger than the frame
// limit is rejected rather than truncated.
func (c *Client) Frame(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/frame", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	frame, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFrame+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read frame: %v", ErrUpstreamUnavailable, err)
	}
	if int64(len(frame)) > c.maxFrame {
		return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrUpstreamUnavailable, c.maxFrame)
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrUpstreamUnavailable)
	}
	return frame, nil
}

// DisplayMetrics implements MetricsFetcher.
func (c *Client) DisplayMetrics(ctx context.Context) (models.DisplayMetrics, error) {
	var m models.DisplayMetrics
	resp, err := c.do(ctx, http.MethodGet, "/display", nil)
	if err != nil {
		return m, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return m, fmt.Errorf("%w: decode display info: %v", ErrUpstreamUnavailable, err)
	}
	return m, nil
}

// CaptureDesktop asks the capture process to capture the primary display.
func (c *Client) CaptureDesktop(ctx context.Context) error {
	return c.post(ctx, "/capture", captureDesktopPayload{})
}

// CaptureWindow asks the capture process to capture a single window.
func (c *Client) CaptureWindow(ctx context.Context, windowID int) error {
	return c.post(ctx, "/capture-window", captureWindowPayload{CGWindowID: windowID})
}

// Execute sends an input command.
func (c *Client) Execute(ctx context.Context, cmd Command) error {
	var payload interface{}
	switch cmd.Action {
	case ActionClick:
		payload = pointerPayload{X: cmd.X, Y: cmd.Y, CGWindowID: cmd.WindowID}
	case ActionKey:
		payload = keyPayload{Key: cmd.Key, Modifiers: cmd.Modifiers, CGWindowID: cmd.WindowID}
	default:
		return fmt.Errorf("unknown command action %q", cmd.Action)
	}
	return c.post(ctx, cmd.Path(), payload)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", path, err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err == nil && status.Status != "" {
		logger.Debugf("Capture process %s: %s", path, status.Status)
	}
	return nil
}

// do performs the request and maps transport failures and non-2xx
// responses to ErrUpstreamUnavailable. On success the caller closes the body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUpstreamUnavailable, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrUpstreamUnavailable, method, path, resp.StatusCode)
	}
	return resp, nil
}
