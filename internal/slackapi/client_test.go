package slackapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(srv.Client(), srv.URL, "xoxb-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresBotToken(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, "", "  ", ""); err == nil {
		t.Fatal("expected an error for a blank bot token")
	}
	c, err := New(nil, "", "xoxb-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.baseURL != defaultBaseURL {
		t.Fatalf("baseURL = %q, want %q", c.baseURL, defaultBaseURL)
	}
}

func TestPostMessageRetriesOn429(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1739667600.000200"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ts, err := c.PostMessage(context.Background(), "C123", "hello", "", false)
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if ts != "1739667600.000200" {
		t.Fatalf("ts = %q, want 1739667600.000200", ts)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestPostMessageAPIErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.PostMessage(context.Background(), "C404", "hello", "", false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != "channel_not_found" {
		t.Fatalf("code = %q, want channel_not_found", apiErr.Code)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1 (ok=false must not retry)", got)
	}
}

func TestThreadRepliesParsesMessages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.replies" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("channel") != "C123" {
			t.Errorf("channel = %q", r.URL.Query().Get("channel"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"ts": "1.000100", "user": "U111", "text": "hello"},
				{"ts": "1.000200", "user": "U999", "bot_id": "B42", "text": "hi there"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	msgs, err := c.ThreadReplies(context.Background(), "C123", "1.000100")
	if err != nil {
		t.Fatalf("ThreadReplies() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[1].BotID != "B42" {
		t.Fatalf("bot_id = %q, want B42", msgs[1].BotID)
	}
}

func TestUserInfoKeepsRawProfile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"user": map[string]any{
				"id":   "U111",
				"name": "alice",
				"profile": map[string]any{
					"display_name": "Alice W",
					"image_192":    "https://example.com/alice.png",
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	user, err := c.UserInfo(context.Background(), "U111")
	if err != nil {
		t.Fatalf("UserInfo() error = %v", err)
	}
	if user.Profile["display_name"] != "Alice W" {
		t.Fatalf("display_name = %v, want Alice W", user.Profile["display_name"])
	}
	if _, ok := user.Profile["image_192"]; !ok {
		t.Fatalf("raw profile should retain image_192; filtering is the tool's job")
	}
}

func TestAuthTestRejectsEmptyUserID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "team_id": "T1"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if _, err := c.AuthTest(context.Background()); err == nil {
		t.Fatalf("expected error for empty user_id")
	}
}
