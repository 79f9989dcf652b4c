// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestServe_DeliversEnvelopes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotKey, gotUser string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		gotUser = r.URL.Query().Get("user_id")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "health.check", "connection_id": "c1"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "user.updated"}`))

		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	source := NewSource(Config{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Key:    "key-123",
		UserID: "ada",
		Token:  "token-abc",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- source.Serve(ctx) }()

	for _, want := range []string{"health.check", "user.updated"} {
		select {
		case raw := <-source.Events():
			if !strings.Contains(string(raw), want) {
				t.Errorf("envelope = %s, want %s", raw, want)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for envelope")
		}
	}

	if gotKey != "key-123" || gotUser != "ada" {
		t.Errorf("dial params = key %q user %q", gotKey, gotUser)
	}

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Serve returned nil after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_DialFailureReturnsError(t *testing.T) {
	source := NewSource(Config{URL: "ws://127.0.0.1:1/connect"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := source.Serve(ctx); err == nil {
		t.Fatal("expected dial error")
	}
}
