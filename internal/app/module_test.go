package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wachat/internal/config"
	"github.com/matheus3301/wachat/internal/lock"
	"github.com/matheus3301/wachat/internal/profile"
	"github.com/matheus3301/wachat/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"wa_id":"111","name":"Ana","unread_count":2},{"wa_id":"222","name":"Bia"}]`))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.Close() }()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testParams(t *testing.T, serverURL string) Params {
	t.Helper()
	t.Setenv(profile.BaseDirEnv, t.TempDir())
	cfg := config.Default()
	cfg.ServerURL = serverURL
	cfg.RequestRetries = 0
	return Params{ProfileName: "test", Config: &cfg, Logger: zap.NewNop()}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	p := testParams(t, "http://localhost:5000")
	if err := fx.ValidateApp(Module(p)); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	srv := newBackend(t)
	p := testParams(t, srv.URL)

	var client *Client
	app := fx.New(Module(p), fx.Populate(&client), fx.NopLogger)
	if err := app.Err(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	chats := client.Orchestrator.Chats()
	if len(chats) != 2 {
		t.Fatalf("chats = %d, want 2", len(chats))
	}

	deadline := time.Now().Add(2 * time.Second)
	for client.Machine.Current() != status.Connected {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want CONNECTED", client.Machine.Current())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := client.Machine.Current(); got != status.Offline {
		t.Errorf("state after stop = %s, want OFFLINE", got)
	}
}

func TestSecondClientOnSameProfileFails(t *testing.T) {
	p := testParams(t, "http://localhost:5000")

	held, err := lock.Acquire(profile.LockPath(p.ProfileName))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()

	app := fx.New(Module(p), fx.NopLogger)
	var lockErr *lock.LockHeldError
	if !errors.As(app.Err(), &lockErr) {
		t.Errorf("app.Err() = %v, want LockHeldError", app.Err())
	}
}

func TestStartWithBackendDownIsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	p := testParams(t, srv.URL)
	p.NoPush = true
	srv.Close()

	var client *Client
	app := fx.New(Module(p), fx.Populate(&client), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := client.Orchestrator.DirectoryDegraded(); err == nil {
		t.Error("DirectoryDegraded() = nil with unreachable backend")
	}
	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	l, err := lock.Acquire(profile.LockPath(p.ProfileName))
	if err != nil {
		t.Fatalf("lock not released after stop: %v", err)
	}
	_ = l.Release()
}
