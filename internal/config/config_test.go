package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Notify.Workers != 4 || cfg.Notify.QueueSize != 256 || cfg.Notify.RetentionDays != 90 {
		t.Fatalf("unexpected notify defaults: %+v", cfg.Notify)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	workspace := t.TempDir()
	doc := `
server:
  address: ":9090"
notify:
  retention_days: 30
webhooks:
  - url: https://example.com/hook
    secret: shh
    categories: [quote, message]
`
	if err := os.WriteFile(filepath.Join(workspace, "gigline.yml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(workspace)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("base path default lost: %q", cfg.Server.BasePath)
	}
	if cfg.Notify.RetentionDays != 30 || cfg.Notify.Workers != 4 {
		t.Fatalf("notify merge wrong: %+v", cfg.Notify)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.com/hook" {
		t.Fatalf("webhooks not parsed: %+v", cfg.Webhooks)
	}
	if len(cfg.Webhooks[0].Categories) != 2 {
		t.Fatalf("categories = %v", cfg.Webhooks[0].Categories)
	}
}

func TestFromYAMLValidation(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"empty address", "server:\n  address: \"\"\n", "server.address"},
		{"zero workers", "notify:\n  workers: 0\n", "notify.workers"},
		{"negative retention", "notify:\n  retention_days: -1\n", "retention_days"},
		{"webhook without url", "webhooks:\n  - secret: shh\n", "webhooks[0].url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
