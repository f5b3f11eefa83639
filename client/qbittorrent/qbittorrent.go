// Package qbittorrent implements the client.Client contract against
// qBittorrent's WebUI API v2, grounded on the teacher's cookiejar-backed
// apiPost/apiRequest helpers and login-on-demand pattern, generalized with a
// rate limiter, circuit breaker and retry policy per the allocation engine's
// transport contract.
//
// qb web API: https://github.com/qbittorrent/qBittorrent/wiki/WebUI-API-(qBittorrent-4.1)
package qbittorrent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mrInvincible29/Qguardarr/apperr"
	"github.com/mrInvincible29/Qguardarr/client"
)

const (
	maxHashesPerBatch = 1000

	circuitFailureThreshold = 5
	circuitCooldown         = 30 * time.Second

	minRequestGap = 100 * time.Millisecond
)

// circuitState mirrors the closed/open/half-open machine spec.md §4.3 requires.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

type circuitBreaker struct {
	mu          sync.Mutex
	state       circuitState
	failures    int
	openedAt    time.Time
}

func (cb *circuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case circuitOpen:
		if time.Since(cb.openedAt) >= circuitCooldown {
			cb.state = circuitHalfOpen
			return nil
		}
		return apperr.ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = circuitClosed
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == circuitHalfOpen || cb.failures >= circuitFailureThreshold {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
	}
}

// isOpen reports the breaker's last-known state without mutating it (unlike
// allow, which advances open -> half-open once the cooldown elapses).
func (cb *circuitBreaker) isOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == circuitOpen
}

// apiTorrent mirrors the subset of qBittorrent's torrents/info response used
// by the allocation engine.
type apiTorrent struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	UpSpeed  int64   `json:"upspeed"`
	UpLimit  int64   `json:"up_limit"`
	NumSeeds int     `json:"num_seeds"`
	NumLeech int     `json:"num_leechs"`
	Size     int64   `json:"size"`
	Progress float64 `json:"progress"`
	State    string  `json:"state"`
	AddedOn  int64   `json:"added_on"`
	Tracker  string  `json:"tracker"`
}

type apiTracker struct {
	Url    string `json:"url"`
	Status int    `json:"status"`
}

// Client talks to a single qBittorrent WebUI instance.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitBreaker

	mu       sync.Mutex
	loggedIn bool
}

// New builds a client bound to host:port. It does not log in eagerly;
// Login must be called before any other method.
func New(host string, port int, username, password string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, apperr.NewTransportError("create cookie jar", err)
	}
	return &Client{
		baseURL:  fmt.Sprintf("http://%s:%d/", host, port),
		username: username,
		password: password,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(minRequestGap), 1),
		breaker: &circuitBreaker{},
	}, nil
}

var _ client.Client = (*Client)(nil)

func (c *Client) wait(ctx context.Context) error {
	if err := c.breaker.allow(); err != nil {
		return err
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) apiPost(ctx context.Context, path string, data url.Values) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, apperr.NewTransportError("build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.recordFailure()
		return nil, apperr.NewTransportError("post "+path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.recordFailure()
		return nil, apperr.NewTransportError("read response", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		c.breaker.recordFailure()
		return nil, apperr.NewAuthError("session expired", nil)
	}
	if resp.StatusCode >= 500 {
		c.breaker.recordFailure()
		return nil, apperr.NewTransportError(fmt.Sprintf("%s status=%d", path, resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.NewProtocolError(fmt.Sprintf("%s status=%d", path, resp.StatusCode), nil)
	}
	c.breaker.recordSuccess()
	return body, nil
}

func (c *Client) apiGet(ctx context.Context, path string, v any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperr.NewTransportError("build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.recordFailure()
		return apperr.NewTransportError("get "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		c.breaker.recordFailure()
		return apperr.NewAuthError("session expired", nil)
	}
	if resp.StatusCode >= 500 {
		c.breaker.recordFailure()
		return apperr.NewTransportError(fmt.Sprintf("%s status=%d", path, resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.NewProtocolError(fmt.Sprintf("%s status=%d", path, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.recordFailure()
		return apperr.NewTransportError("read response", err)
	}
	c.breaker.recordSuccess()
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.NewProtocolError("decode "+path, err)
	}
	return nil
}

// Login authenticates and stores the session cookie in the client's jar.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := url.Values{"username": {c.username}, "password": {c.password}}
	body, err := c.apiPost(ctx, "api/v2/auth/login", data)
	if err != nil {
		return err
	}
	if string(body) != "Ok." {
		return apperr.NewAuthError("login rejected", nil)
	}
	c.loggedIn = true
	return nil
}

// EnsureSession probes the session via get_preferences, the one call this
// adapter issues purely to detect an expired cookie before a cycle's real
// work begins rather than mid-batch.
func (c *Client) EnsureSession(ctx context.Context) error {
	var raw json.RawMessage
	err := c.apiGet(ctx, "api/v2/app/preferences", &raw)
	if isAuthError(err) {
		return c.reloginIfNeeded(ctx, err)
	}
	return err
}

func (c *Client) reloginIfNeeded(ctx context.Context, err error) error {
	if !isAuthError(err) {
		return err
	}
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
	log.Warn("qbittorrent session expired, re-authenticating")
	return c.Login(ctx)
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if _, ok := e.(*apperr.AuthError); ok {
			return true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := fn()
		if err != nil {
			if isAuthError(err) {
				return v, backoff.Permanent(err)
			}
			return v, err
		}
		return v, nil
	}
	return backoff.Retry(ctx, op, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

// GetActiveTorrents returns torrents qBittorrent reports as active whose
// upload speed clears minUpspeedBytes.
func (c *Client) GetActiveTorrents(ctx context.Context, minUpspeedBytes int64) ([]client.TorrentInfo, error) {
	fetch := func() ([]apiTorrent, error) {
		var raw []apiTorrent
		err := c.apiGet(ctx, "api/v2/torrents/info?filter=active", &raw)
		if isAuthError(err) {
			if lerr := c.reloginIfNeeded(ctx, err); lerr != nil {
				return nil, lerr
			}
			err = c.apiGet(ctx, "api/v2/torrents/info?filter=active", &raw)
		}
		return raw, err
	}
	raw, err := withRetry(ctx, fetch)
	if err != nil {
		return nil, err
	}

	out := make([]client.TorrentInfo, 0, len(raw))
	for _, t := range raw {
		if t.UpSpeed < minUpspeedBytes {
			continue
		}
		out = append(out, toTorrentInfo(t))
	}
	return out, nil
}

// GetTorrentsByHashes backfills a bounded set of previously-seen hashes.
func (c *Client) GetTorrentsByHashes(ctx context.Context, hashes []string) ([]client.TorrentInfo, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	if len(hashes) > maxHashesPerBatch {
		hashes = hashes[:maxHashesPerBatch]
	}
	path := "api/v2/torrents/info?hashes=" + strings.Join(hashes, "|")
	fetch := func() ([]apiTorrent, error) {
		var raw []apiTorrent
		err := c.apiGet(ctx, path, &raw)
		if isAuthError(err) {
			if lerr := c.reloginIfNeeded(ctx, err); lerr != nil {
				return nil, lerr
			}
			err = c.apiGet(ctx, path, &raw)
		}
		return raw, err
	}
	raw, err := withRetry(ctx, fetch)
	if err != nil {
		return nil, err
	}
	out := make([]client.TorrentInfo, 0, len(raw))
	for _, t := range raw {
		out = append(out, toTorrentInfo(t))
	}
	return out, nil
}

// GetTrackersFor returns the representative tracker URL per hash: the first
// working (status==2) tracker, else the first non-errored one, else the first
// tracker even if errored, else "". DHT/PeX/LSD pseudo-trackers are skipped.
func (c *Client) GetTrackersFor(ctx context.Context, hashes []string) (map[string]string, error) {
	result := make(map[string]string, len(hashes))
	for _, h := range hashes {
		var trackers []apiTracker
		fetch := func() ([]apiTracker, error) {
			var raw []apiTracker
			err := c.apiGet(ctx, "api/v2/torrents/trackers?hash="+h, &raw)
			if isAuthError(err) {
				if lerr := c.reloginIfNeeded(ctx, err); lerr != nil {
					return nil, lerr
				}
				err = c.apiGet(ctx, "api/v2/torrents/trackers?hash="+h, &raw)
			}
			return raw, err
		}
		raw, err := withRetry(ctx, fetch)
		if err != nil {
			return nil, err
		}
		trackers = raw
		result[h] = pickRepresentative(trackers)
	}
	return result, nil
}

func pickRepresentative(trackers []apiTracker) string {
	first := ""
	for _, t := range trackers {
		if strings.HasPrefix(t.Url, "**") {
			continue // DHT/PeX/LSD pseudo-trackers
		}
		if first == "" {
			first = t.Url
		}
		if t.Status == 2 {
			return t.Url
		}
	}
	nonErrored := ""
	for _, t := range trackers {
		if strings.HasPrefix(t.Url, "**") || t.Status == 4 {
			continue
		}
		nonErrored = t.Url
		break
	}
	if nonErrored != "" {
		return nonErrored
	}
	return first
}

// SetUploadLimits groups hashes by target limit and issues one setUploadLimit
// call per group, chunked to maxHashesPerBatch. Writes are not retried: an
// ambiguous failure here may have already taken effect on the client, so a
// retry could apply the wrong limit twice. Every batch is attempted even
// after an earlier one fails; failed hashes are returned via WriteError and
// left for the next cycle to reattempt.
func (c *Client) SetUploadLimits(ctx context.Context, limits map[string]int64) error {
	byLimit := make(map[int64][]string)
	for hash, limit := range limits {
		if limit <= 0 {
			limit = 0 // qBittorrent's "unlimited" sentinel is 0, not -1
		}
		byLimit[limit] = append(byLimit[limit], hash)
	}
	failed := make(map[string]error)
	for limit, hashes := range byLimit {
		for start := 0; start < len(hashes); start += maxHashesPerBatch {
			end := start + maxHashesPerBatch
			if end > len(hashes) {
				end = len(hashes)
			}
			chunk := hashes[start:end]
			data := url.Values{
				"hashes": {strings.Join(chunk, "|")},
				"limit":  {strconv.FormatInt(limit, 10)},
			}
			if _, err := c.apiPost(ctx, "api/v2/torrents/setUploadLimit", data); err != nil {
				for _, h := range chunk {
					failed[h] = err
				}
			}
		}
	}
	return apperr.NewWriteError(failed)
}

// CircuitOpen reports whether the breaker is currently tripped, for /health
// to fold transport health into its degraded/healthy verdict.
func (c *Client) CircuitOpen() bool {
	return c.breaker.isOpen()
}

// Close logs out and drops the session.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn {
		return nil
	}
	_, err := c.apiPost(ctx, "api/v2/auth/logout", nil)
	c.loggedIn = false
	return err
}

func toTorrentInfo(t apiTorrent) client.TorrentInfo {
	limit := t.UpLimit
	if limit <= 0 {
		limit = client.Unlimited
	}
	return client.TorrentInfo{
		Hash:        t.Hash,
		Name:        t.Name,
		TrackerURL:  t.Tracker,
		UpSpeed:     t.UpSpeed,
		UploadLimit: limit,
		NumSeeds:    t.NumSeeds,
		NumLeechs:   t.NumLeech,
		Size:        t.Size,
		Progress:    t.Progress,
		State:       t.State,
		AddedOn:     t.AddedOn,
	}
}
