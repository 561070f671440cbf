package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EvalTimeout != 10*time.Second {
		t.Errorf("EvalTimeout = %s, want 10s", cfg.EvalTimeout)
	}
	if cfg.MaxDepth != 10 {
		t.Errorf("MaxDepth = %d, want 10", cfg.MaxDepth)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CATALYST_EVAL_TIMEOUT", "250ms")
	t.Setenv("CATALYST_MAX_DEPTH", "3")
	t.Setenv("CATALYST_PLAYBOOK_ROOTS", "/srv/playbooks:/opt/playbooks")
	t.Setenv("CATALYST_PROTOCOL_ROOTS", "kb=/srv/kb,templates=/srv/templates")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EvalTimeout != 250*time.Millisecond {
		t.Errorf("EvalTimeout = %s", cfg.EvalTimeout)
	}
	if cfg.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d", cfg.MaxDepth)
	}
	if len(cfg.PlaybookRoots) != 2 || cfg.PlaybookRoots[0] != "/srv/playbooks" {
		t.Errorf("PlaybookRoots = %v", cfg.PlaybookRoots)
	}
	if cfg.ProtocolRoots["kb"] != "/srv/kb" || cfg.ProtocolRoots["templates"] != "/srv/templates" {
		t.Errorf("ProtocolRoots = %v", cfg.ProtocolRoots)
	}
}

func TestSecretsFromEnvironment(t *testing.T) {
	t.Setenv("CATALYST_SECRET_API_KEY", "s3cr3t")
	t.Setenv("CATALYST_SECRET_BLANK", "")

	s := Secrets()
	if s["api_key"] != "s3cr3t" {
		t.Errorf("api_key = %q", s["api_key"])
	}
	if _, ok := s["blank"]; ok {
		t.Error("empty secret values must not register")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CATALYST_MAX_DEPTH", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero max depth")
	}
}
