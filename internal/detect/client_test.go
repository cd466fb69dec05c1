package detect_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"

	"github.com/fakeyudi/smilebooth/internal/detect"
)

func quietLogger() *charmlog.Logger {
	return charmlog.New(io.Discard)
}

// predictServer answers /predict with the given smile verdict and
// records the decoded frame bytes it received.
func predictServer(t *testing.T, smile bool, score float64, got *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: want application/json, got %q", ct)
		}
		var payload struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		const prefix = "data:image/jpeg;base64,"
		if !strings.HasPrefix(payload.Image, prefix) {
			t.Errorf("image payload missing data-URL prefix: %.40q", payload.Image)
		}
		if got != nil {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload.Image, prefix))
			if err != nil {
				t.Errorf("decoding image payload: %v", err)
			}
			*got = decoded
		}
		json.NewEncoder(w).Encode(map[string]any{"smile": smile, "score": score})
	}))
}

func TestPollSmile(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	var received []byte
	srv := predictServer(t, true, 0.92, &received)
	defer srv.Close()

	c := detect.NewClient(srv.URL, quietLogger())
	if got := c.Poll(context.Background(), frame); got != detect.DecisionSmile {
		t.Errorf("want smile, got %s", got)
	}
	if string(received) != string(frame) {
		t.Error("backend received different frame bytes")
	}
}

func TestPollNoSmile(t *testing.T) {
	srv := predictServer(t, false, 0.12, nil)
	defer srv.Close()

	c := detect.NewClient(srv.URL, quietLogger())
	if got := c.Poll(context.Background(), []byte{1}); got != detect.DecisionNoSmile {
		t.Errorf("want no-smile, got %s", got)
	}
}

func TestPollServerErrorFoldsToNoSmile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := detect.NewClient(srv.URL, quietLogger())
	if got := c.Poll(context.Background(), []byte{1}); got != detect.DecisionNoSmile {
		t.Errorf("want no-smile on 500, got %s", got)
	}
}

func TestPollUnreachableFoldsToNoSmile(t *testing.T) {
	c := detect.NewClient("http://127.0.0.1:1", quietLogger())
	if got := c.Poll(context.Background(), []byte{1}); got != detect.DecisionNoSmile {
		t.Errorf("want no-smile when unreachable, got %s", got)
	}
}

func TestPollMalformedResponseFoldsToNoSmile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	c := detect.NewClient(srv.URL, quietLogger())
	if got := c.Poll(context.Background(), []byte{1}); got != detect.DecisionNoSmile {
		t.Errorf("want no-smile on parse failure, got %s", got)
	}
}

func TestPollCancelledReturnsNone(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	c := detect.NewClient(srv.URL, quietLogger())
	if got := c.Poll(ctx, []byte{1}); got != detect.DecisionNone {
		t.Errorf("want none on cancellation, got %s", got)
	}
}

func TestNotifyManual(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	c := detect.NewClient(srv.URL, quietLogger())
	if err := c.NotifyManual(context.Background(), []byte{1}); err != nil {
		t.Fatalf("NotifyManual: %v", err)
	}
	if path != "/manual_capture" {
		t.Errorf("path: want /manual_capture, got %q", path)
	}
}

func TestNotifyManualRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := detect.NewClient(srv.URL, quietLogger())
	if err := c.NotifyManual(context.Background(), []byte{1}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestHealthOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := detect.NewClient(srv.URL, quietLogger())
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestHealthUnreachable(t *testing.T) {
	c := detect.NewClient("http://127.0.0.1:1", quietLogger())
	err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "backend unreachable") {
		t.Errorf("message should name unreachable backend, got %q", err)
	}
}

func TestHealthUnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := detect.NewClient(srv.URL, quietLogger())
	err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "backend unhealthy") {
		t.Errorf("message should name unhealthy backend, got %q", err)
	}
}
