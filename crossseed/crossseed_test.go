package crossseed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrInvincible29/Qguardarr/webhook"
)

func TestForwardPostsExpectedPayload(t *testing.T) {
	var received payload
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-Api-Key")
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(srv.URL, "secret-key", 5*time.Second)
	f.Forward(context.Background(), webhook.Event{Hash: "abc123", TrackerURL: "http://tracker.example.com"})

	if received.Hash != "abc123" || received.TrackerURL != "http://tracker.example.com" {
		t.Errorf("unexpected payload received: %+v", received)
	}
	if apiKey != "secret-key" {
		t.Errorf("expected api key header forwarded, got %q", apiKey)
	}
}

func TestForwardRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(srv.URL, "", 5*time.Second)
	f.Forward(context.Background(), webhook.Event{Hash: "abc123"})

	if got := atomic.LoadInt32(&attempts); got < 2 {
		t.Errorf("expected at least 2 attempts after a 5xx, got %d", got)
	}
}

func TestForwardDoesNotRetryOn4xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	f := New(srv.URL, "", 5*time.Second)
	f.Forward(context.Background(), webhook.Event{Hash: "abc123"})

	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent 4xx, got %d", got)
	}
}
