package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/resilience"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGenerateSendsPrompt(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  a short summary \n"}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL + "/", Model: "phi3:mini", Temperature: 0.3}, nil, quiet())
	got, err := c.Generate(context.Background(), "Summarize this")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "a short summary" {
		t.Errorf("got %q", got)
	}
	if payload["model"] != "phi3:mini" || payload["prompt"] != "Summarize this" || payload["stream"] != false {
		t.Errorf("payload = %v", payload)
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 2, RetryInitialBackoff: time.Millisecond}, quiet())
	c := New(Config{BaseURL: server.URL, Model: "m"}, exec, quiet())
	if _, err := c.Generate(context.Background(), "p"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGenerateIncludesBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m"}, nil, quiet())
	_, err := c.Generate(context.Background(), "p")
	var status *HTTPStatusError
	if !errors.As(err, &status) || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("err = %v", err)
	}
}

func TestAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"phi3:mini"},{"name":"llama3:latest"}]}`))
	}))
	defer server.Close()

	if err := New(Config{BaseURL: server.URL, Model: "llama3"}, nil, quiet()).Available(context.Background()); err != nil {
		t.Errorf("llama3: %v", err)
	}
	err := New(Config{BaseURL: server.URL, Model: "mistral"}, nil, quiet()).Available(context.Background())
	if !errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Errorf("mistral: %v", err)
	}
}

func TestAvailableUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	err := New(Config{BaseURL: url, Model: "m"}, nil, quiet()).Available(context.Background())
	if !errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Errorf("err = %v", err)
	}
}
