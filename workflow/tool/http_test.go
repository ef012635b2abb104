package tool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTool_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ht := NewHTTPTool(5 * time.Second)
	out, err := ht.Invoke(context.Background(), map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"Authorization": "Bearer token"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	result := out.(map[string]any)
	if result["status_code"] != http.StatusOK {
		t.Errorf("status_code = %v", result["status_code"])
	}
	if result["body"] != `{"ok":true}` {
		t.Errorf("body = %v", result["body"])
	}
	headers := result["headers"].(map[string]any)
	if headers["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %v", headers["Content-Type"])
	}
}

func TestHTTPTool_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"q":"rivers"}` {
			t.Errorf("request body = %q", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ht := NewHTTPTool(5 * time.Second)
	out, err := ht.Invoke(context.Background(), map[string]any{
		"url":    srv.URL,
		"method": "post",
		"body":   `{"q":"rivers"}`,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out.(map[string]any)["status_code"] != http.StatusCreated {
		t.Errorf("status_code = %v", out.(map[string]any)["status_code"])
	}
}

func TestHTTPTool_InvalidInput(t *testing.T) {
	ht := NewHTTPTool(time.Second)

	if _, err := ht.Invoke(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing url")
	}
	if _, err := ht.Invoke(context.Background(), map[string]any{
		"url":    "http://example.com",
		"method": "DELETE",
	}); err == nil {
		t.Error("expected error for unsupported method")
	}
}

func TestHTTPTool_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ht := NewHTTPTool(0)
	if _, err := ht.Invoke(ctx, map[string]any{"url": srv.URL}); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestHTTPTool_Identity(t *testing.T) {
	ht := NewHTTPTool(time.Second)
	if ht.Name() != "http_request" {
		t.Errorf("Name() = %q", ht.Name())
	}
	if ht.Description() == "" {
		t.Error("Description() is empty")
	}
}
