package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/config"
	"github.com/frankferrari/lanomat/internal/handlers"
	"github.com/frankferrari/lanomat/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "lanomat.db")
	cfg.BaseURL = "http://192.168.1.20:8080/"
	return cfg
}

func createTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(testConfig(t), logger.Discard(), clockwork.NewRealClock())
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestNew_InitializesApp(t *testing.T) {
	a := createTestApp(t)

	if a.handlers == nil || a.hub == nil || a.countdown == nil || a.repo == nil {
		t.Error("expected every component to be wired")
	}
	if a.nc != nil {
		t.Error("NATS should stay off without a URL")
	}
	if a.BaseURL() != "http://192.168.1.20:8080" {
		t.Errorf("base url = %q", a.BaseURL())
	}
}

func TestNew_FailsWithBadDBPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBPath = "/nonexistent/path/db.sqlite"

	if _, err := New(cfg, logger.Discard(), clockwork.NewRealClock()); err == nil {
		t.Error("expected error for invalid db path")
	}
}

func TestNew_FailsWhenNATSUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS.URL = "nats://127.0.0.1:1"

	if _, err := New(cfg, logger.Discard(), clockwork.NewRealClock()); err == nil {
		t.Error("expected error for unreachable NATS")
	}
}

func TestApp_Router_ServesSessionFlow(t *testing.T) {
	a := createTestApp(t)
	server := httptest.NewServer(a.Router())
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/sessions", "application/json", strings.NewReader(`{"name":"Ada"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created handlers.JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if created.Session.Voting.BonusVoteBudget != 2 {
		t.Errorf("expected configured defaults, got %+v", created.Session.Voting)
	}
}

func TestApp_Close_IsIdempotent(t *testing.T) {
	a, err := New(testConfig(t), logger.Discard(), clockwork.NewRealClock())
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	a.Close()
	a.Close()
}

func TestApp_Serve_StopsOnCancel(t *testing.T) {
	a := createTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Serve(ctx, ln)
	}()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestLateBroadcaster(t *testing.T) {
	b := &lateBroadcaster{}
	b.BroadcastToSession(1, "ignored", nil)

	rec := &recorder{}
	b.target = rec
	b.BroadcastToSession(1, "scores", nil)
	if len(rec.types) != 1 || rec.types[0] != "scores" {
		t.Errorf("got %v", rec.types)
	}
}

type recorder struct {
	types []string
}

func (r *recorder) BroadcastToSession(sessionID int64, msgType string, payload any) {
	r.types = append(r.types, msgType)
}
