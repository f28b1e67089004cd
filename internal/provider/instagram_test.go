package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dmflow/internal/dispatch"
	"dmflow/pkg/logx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:     srv.URL,
		Version:     "v19.0",
		AccessToken: "token-abc",
		SenderID:    "sender-1",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{SenderID: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error without access token")
	}
	if _, err := New(Config{AccessToken: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error without sender id")
	}
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()
	var gotPath, gotAuth string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"message_id": "mid_123"})
	})

	res, err := c.Send(context.Background(), dispatch.SendRequest{
		RecipientUserID: "9001",
		Message:         "Hey Jamie!",
		Tag:             "HUMAN_AGENT",
		Metadata:        map[string]string{"campaign": "launch"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != "mid_123" {
		t.Fatalf("MessageID = %q", res.MessageID)
	}
	if gotPath != "/v19.0/sender-1/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token-abc" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["messaging_product"] != "instagram" {
		t.Fatalf("messaging_product = %v", gotBody["messaging_product"])
	}
	rec, _ := gotBody["recipient"].(map[string]any)
	if rec["id"] != "9001" {
		t.Fatalf("recipient = %v", gotBody["recipient"])
	}
	msg, _ := gotBody["message"].(map[string]any)
	if msg["text"] != "Hey Jamie!" {
		t.Fatalf("message = %v", gotBody["message"])
	}
	if gotBody["tag"] != "HUMAN_AGENT" {
		t.Fatalf("tag = %v", gotBody["tag"])
	}
}

func TestSendGraphError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	})

	_, err := c.Send(context.Background(), dispatch.SendRequest{RecipientUserID: "1", Message: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Invalid OAuth access token") {
		t.Fatalf("err = %v, want the graph message surfaced", err)
	}
	if !strings.Contains(err.Error(), "190") {
		t.Fatalf("err = %v, want the graph code surfaced", err)
	}
}

func TestSendOpaqueError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := c.Send(context.Background(), dispatch.SendRequest{RecipientUserID: "1", Message: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want status fallback", err)
	}
}

func TestSendRejectsEmptyInput(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("boundary must not be reached for invalid input")
	})
	if _, err := c.Send(context.Background(), dispatch.SendRequest{Message: "x"}); err == nil {
		t.Fatal("expected error for empty recipient id")
	}
	if _, err := c.Send(context.Background(), dispatch.SendRequest{RecipientUserID: "1"}); err == nil {
		t.Fatal("expected error for empty message")
	}
}
