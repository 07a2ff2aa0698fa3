package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaatoai/jaato/internal/permission"
)

func TestAskPostsThenPollsUntilResolved(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/permissions":
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet:
			n := atomic.AddInt32(&polls, 1)
			w.Header().Set("Content-Type", "application/json")
			if n < 2 {
				json.NewEncoder(w).Encode(pollResponse{Resolved: false})
				return
			}
			json.NewEncoder(w).Encode(pollResponse{Resolved: true, Decision: permission.ActionAlways})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ch := New(srv.URL, "secret", WithPollInterval(5*time.Millisecond))
	action, err := ch.Ask(context.Background(), permission.Request{
		RequestID: "req-1",
		ToolName:  "exec",
		Args:      json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if action != permission.ActionAlways {
		t.Errorf("action = %q, want always", action)
	}
	if atomic.LoadInt32(&polls) < 2 {
		t.Errorf("expected at least 2 polls, got %d", polls)
	}
}

func TestAskReturnsErrorOnPostFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	ch := New(srv.URL, "secret")
	_, err := ch.Ask(context.Background(), permission.Request{RequestID: "req-2", ToolName: "exec"})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestAskHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		json.NewEncoder(w).Encode(pollResponse{Resolved: false})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	ch := New(srv.URL, "secret", WithPollInterval(10*time.Millisecond))
	_, err := ch.Ask(ctx, permission.Request{RequestID: "req-3", ToolName: "exec"})
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}
