package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Validation.Strategy != StrategyThorough || !cfg.Validation.Lenient || !cfg.Validation.BrokenWebsiteBlocks {
		t.Fatalf("unexpected validation defaults: %+v", cfg.Validation)
	}
	if cfg.SMTP.Timeout != 8*time.Second || cfg.HTTP.Timeout != 10*time.Second || cfg.DNS.CacheTTL != 24*time.Hour {
		t.Fatalf("unexpected timeouts: smtp=%s http=%s dns ttl=%s", cfg.SMTP.Timeout, cfg.HTTP.Timeout, cfg.DNS.CacheTTL)
	}
	if cfg.SMTP.HeloDomain != "" {
		t.Fatalf("default helo domain should fall back to the checked address, got %q", cfg.SMTP.HeloDomain)
	}
	if len(cfg.Domains.FreeMail) == 0 || len(cfg.Domains.Disposable) == 0 {
		t.Fatalf("domain lists should be seeded")
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("validation:\n  strategy: basic\ndomains:\n  free_mail: [example-mail.com]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Validation.Strategy != StrategyBasic {
		t.Fatalf("strategy = %s", cfg.Validation.Strategy)
	}
	if len(cfg.Domains.FreeMail) != 1 || cfg.Domains.FreeMail[0] != "example-mail.com" {
		t.Fatalf("free_mail should be replaced, got %v", cfg.Domains.FreeMail)
	}
	if cfg.SMTP.MaxMXHosts != 3 {
		t.Fatalf("unset keys keep defaults, max_mx_hosts = %d", cfg.SMTP.MaxMXHosts)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"validation:\n  strategy: paranoid\n": "strategy",
		"cache:\n  backend: redis\n":          "redis_addr",
		"cache:\n  backend: memcached\n":      "backend",
		"smtp:\n  max_mx_hosts: 0\n":          "max_mx_hosts",
		"domains:\n  disposable: ['']\n":      "empty domain",
		"not: [valid":                         "invalid config yaml",
	}
	for doc, want := range cases {
		_, err := FromYAML([]byte(doc))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%q: expected error containing %q, got %v", doc, want, err)
		}
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil || cfg.Validation.Strategy != StrategyThorough {
		t.Fatalf("load without file: %v %+v", err, cfg)
	}
	if err := os.WriteFile(filepath.Join(dir, "leadready.yml"), []byte("validation:\n  lenient: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil || cfg.Validation.Lenient {
		t.Fatalf("load with file: %v %+v", err, cfg)
	}
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("generated default must parse: %v", err)
	}
}

func TestWebhookConfig(t *testing.T) {
	cfg, err := FromYAML([]byte("webhooks:\n  - url: https://hooks.example.com/in\n    events: [upload.validated]\n    timeout: 3s\n  - url: https://hooks.example.com/off\n    enabled: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Webhooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(cfg.Webhooks))
	}
	if !cfg.Webhooks[0].Active() || cfg.Webhooks[0].Timeout != 3*time.Second {
		t.Fatalf("first hook: %+v", cfg.Webhooks[0])
	}
	if cfg.Webhooks[1].Active() {
		t.Fatalf("disabled hook reported active")
	}
	if _, err := FromYAML([]byte("webhooks:\n  - url: not-a-url\n")); err == nil {
		t.Fatalf("expected relative webhook url to be rejected")
	}
}
