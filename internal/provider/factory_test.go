package provider

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rezkam/codedive/internal/config"
	"github.com/rezkam/codedive/internal/domain"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.General.DefaultProvider = "openai"
	cfg.Providers = map[string]config.ProviderConfig{
		"openai": {Enabled: true, APIBase: "https://api.openai.com/v1", APIKey: "sk-test", DefaultModel: "gpt-4o-mini"},
		"ollama": {Enabled: true, APIBase: "http://localhost:11434"},
		"custom": {Enabled: true, APIBase: "https://example.com/v1", APIKey: "key"},
		"broken": {Enabled: true},
		"off":    {Enabled: false, APIBase: "https://example.com/v1"},
	}
	return cfg
}

func TestFactory_GetKnownProviders(t *testing.T) {
	f := NewFactory(testConfig(), slog.Default())

	for _, name := range []string{"openai", "ollama"} {
		p, err := f.Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if p.Name() != name {
			t.Fatalf("expected %q, got %q", name, p.Name())
		}
	}
}

func TestFactory_DefaultProvider(t *testing.T) {
	f := NewFactory(testConfig(), slog.Default())

	p, err := f.Get("")
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if p.Name() != "openai" {
		t.Fatalf("expected default 'openai', got %q", p.Name())
	}
}

func TestFactory_CachesInstances(t *testing.T) {
	f := NewFactory(testConfig(), slog.Default())

	p1, err := f.Get("openai")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	p2, err := f.Get("openai")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if p1 != p2 {
		t.Fatal("expected the same cached instance")
	}
}

func TestFactory_UnknownProvider(t *testing.T) {
	f := NewFactory(testConfig(), slog.Default())

	if _, err := f.Get("nope"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestFactory_DisabledProvider(t *testing.T) {
	f := NewFactory(testConfig(), slog.Default())

	if _, err := f.Get("off"); err == nil {
		t.Fatal("expected error for disabled provider")
	}
}

func TestFactory_OpenAICompatibleFallback(t *testing.T) {
	f := NewFactory(testConfig(), slog.Default())

	p, err := f.Get("custom")
	if err != nil {
		t.Fatalf("get custom: %v", err)
	}
	if _, ok := p.(*OpenAI); !ok {
		t.Fatalf("expected OpenAI-compatible fallback, got %T", p)
	}
}

func TestFactory_UnregisteredWithoutCredentials(t *testing.T) {
	f := NewFactory(testConfig(), slog.Default())

	if _, err := f.Get("broken"); err == nil {
		t.Fatal("expected error for provider without constructor or credentials")
	}
}

func TestFactory_RegisterConstructor(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["fake"] = config.ProviderConfig{Enabled: true}
	f := NewFactory(cfg, slog.Default())

	f.RegisterConstructor("fake", func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{Logger: logger})
	})

	p, err := f.Get("fake")
	if err != nil {
		t.Fatalf("get fake: %v", err)
	}
	if p == nil {
		t.Fatal("expected provider from registered constructor")
	}
}

func TestOllama_ChatToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"id": "call-1", "type": "function", "function": {"name": "shell", "arguments": {"command": "ls"}}}
				]
			},
			"done": true,
			"done_reason": "tool_calls"
		}`))
	}))
	defer srv.Close()

	o := NewOllamaWithClient(OllamaConfig{APIBase: srv.URL}, srv.Client())

	resp, err := o.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "list files"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !resp.HasToolCalls() {
		t.Fatal("expected tool calls in response")
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "shell" {
		t.Fatalf("expected tool 'shell', got %q", tc.Name)
	}
	if tc.Arguments["command"] != "ls" {
		t.Fatalf("expected command 'ls', got %v", tc.Arguments["command"])
	}
}

func TestOllama_ChatStringArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"id": "call-1", "type": "function", "function": {"name": "shell", "arguments": "{\"command\": \"pwd\"}"}}
				]
			},
			"done": true,
			"done_reason": "tool_calls"
		}`))
	}))
	defer srv.Close()

	o := NewOllamaWithClient(OllamaConfig{APIBase: srv.URL}, srv.Client())

	resp, err := o.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "where am I"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Arguments["command"] != "pwd" {
		t.Fatalf("string-encoded arguments not decoded: %+v", resp.ToolCalls)
	}
}
