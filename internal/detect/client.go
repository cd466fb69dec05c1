// Package detect talks to the remote smile-detection backend. It wraps
// the backend's three endpoints: /predict (smile decision), /health
// (connectivity probe), and /manual_capture (fire-and-forget notify).
package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Decision is the tri-state outcome of a detection poll. A cancelled
// request yields DecisionNone, distinguished internally from "no smile"
// but treated identically by the orchestrator: neither triggers a
// capture.
type Decision int

const (
	DecisionNone Decision = iota // cancelled / no decision
	DecisionNoSmile
	DecisionSmile
)

// String returns a short label for logs.
func (d Decision) String() string {
	switch d {
	case DecisionSmile:
		return "smile"
	case DecisionNoSmile:
		return "no-smile"
	}
	return "none"
}

// HealthTimeout bounds a single /health probe.
const HealthTimeout = 3 * time.Second

// Client is a stateless detection-service client. Transport failures on
// /predict are folded into DecisionNoSmile and logged; they never reach
// the user.
type Client struct {
	baseURL string
	http    *http.Client
	log     *log.Logger
}

// NewClient returns a Client for the backend at baseURL.
func NewClient(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.With("component", "detect"),
	}
}

// predictResponse mirrors the backend's /predict payload.
type predictResponse struct {
	Smile bool    `json:"smile"`
	Score float64 `json:"score"`
}

// Poll sends a raw JPEG frame to /predict and returns the decision.
// Cancellation of ctx yields DecisionNone without logging. Every other
// failure (transport, non-2xx, parse) yields DecisionNoSmile and a
// warn log: the polling loop just keeps going.
func (c *Client) Poll(ctx context.Context, jpeg []byte) Decision {
	resp, err := c.postImage(ctx, "/predict", jpeg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return DecisionNone
		}
		c.log.Warn("detection request failed", "err", err)
		return DecisionNoSmile
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("detection request rejected", "status", resp.StatusCode)
		return DecisionNoSmile
	}

	var pr predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		c.log.Warn("decoding detection response", "err", err)
		return DecisionNoSmile
	}

	c.log.Debug("poll result", "smile", pr.Smile, "score", pr.Score)
	if pr.Smile {
		return DecisionSmile
	}
	return DecisionNoSmile
}

// NotifyManual posts the frame to /manual_capture. Best effort: the
// caller logs and ignores any error.
func (c *Client) NotifyManual(ctx context.Context, jpeg []byte) error {
	resp, err := c.postImage(ctx, "/manual_capture", jpeg)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("manual capture rejected: status %d", resp.StatusCode)
	}
	return nil
}

// Health probes /health with a short timeout. The returned error
// distinguishes timeout from unreachable for user-facing messaging
// only; control flow treats both as disconnected.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("backend timed out: %w", err)
		}
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// postImage sends jpeg as the backend's data-URL JSON payload.
func (c *Client) postImage(ctx context.Context, path string, jpeg []byte) (*http.Response, error) {
	payload := struct {
		Image string `json:"image"`
	}{
		Image: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}
