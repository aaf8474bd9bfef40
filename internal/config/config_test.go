package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LISTEN_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.AI.RetryCount != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", cfg.AI.RetryCount)
	}
	if cfg.AI.RetryBackoff != time.Second {
		t.Fatalf("expected 1s backoff, got %s", cfg.AI.RetryBackoff)
	}
	if !cfg.AI.TemplateFallback {
		t.Fatal("template fallback should default to true")
	}
	if cfg.UploadURLPath != "/image/postcards" {
		t.Fatalf("unexpected upload url path %q", cfg.UploadURLPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("UPLOAD_URL_PATH", "media/cards/")
	t.Setenv("AI_PROVIDER", " DouBao ")
	t.Setenv("AI_RETRY_ATTEMPTS", "0")
	t.Setenv("AI_TEMPLATE_FALLBACK", "false")
	t.Setenv("WORKER_POSTCARD", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.UploadURLPath != "/media/cards" {
		t.Fatalf("unexpected upload url path %q", cfg.UploadURLPath)
	}
	if cfg.AI.Provider != "doubao" {
		t.Fatalf("unexpected provider %q", cfg.AI.Provider)
	}
	if cfg.AI.RetryCount != 1 {
		t.Fatalf("retry attempts should be floored at 1, got %d", cfg.AI.RetryCount)
	}
	if cfg.AI.TemplateFallback {
		t.Fatal("expected template fallback disabled")
	}
	if cfg.Workers.PostcardWorkers != 4 {
		t.Fatalf("unexpected postcard workers %d", cfg.Workers.PostcardWorkers)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("AI_RETRY_BACKOFF", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
