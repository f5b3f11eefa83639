// Package crossseed forwards completion events to a collaborating
// cross-seed instance over HTTP, independently of the webhook intake it
// reads from. Failures here never affect allocation; forwarding is its own
// best-effort task with bounded retry.
package crossseed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"

	"github.com/mrInvincible29/Qguardarr/webhook"
)

// Forwarder posts completion events to a configured cross-seed endpoint.
type Forwarder struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// New returns a disabled-safe forwarder; callers should not construct one
// when config.CrossSeed.Enabled is false.
func New(url, apiKey string, timeout time.Duration) *Forwarder {
	return &Forwarder{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type payload struct {
	Hash       string `json:"hash"`
	TrackerURL string `json:"tracker_url,omitempty"`
}

// Forward posts ev to the cross-seed endpoint, making up to 3 attempts in
// total with exponential backoff between them. It never returns an error the caller must act on
// beyond logging: forwarding failure does not affect allocation.
func (f *Forwarder) Forward(ctx context.Context, ev webhook.Event) {
	body, err := json.Marshal(payload{Hash: ev.Hash, TrackerURL: ev.TrackerURL})
	if err != nil {
		log.Warnf("cross-seed: encode event for %s: %v", ev.Hash, err)
		return
	}

	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if f.apiKey != "" {
			req.Header.Set("X-Api-Key", f.apiKey)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return struct{}{}, fmt.Errorf("cross-seed status=%d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return struct{}{}, backoff.Permanent(fmt.Errorf("cross-seed status=%d", resp.StatusCode))
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, op, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		log.Warnf("cross-seed: forward %s failed after retries: %v", ev.Hash, err)
	}
}
