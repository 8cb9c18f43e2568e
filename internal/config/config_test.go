package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.TargetLanguage != "en" {
		t.Errorf("TargetLanguage = %q, want en", cfg.TargetLanguage)
	}
	if cfg.TranslationCacheSize != 1000 {
		t.Errorf("TranslationCacheSize = %d, want 1000", cfg.TranslationCacheSize)
	}
	if cfg.ConversationTTL != 24*time.Hour {
		t.Errorf("ConversationTTL = %v, want 24h", cfg.ConversationTTL)
	}
	if cfg.RouteAcceptThreshold != 0.6 {
		t.Errorf("RouteAcceptThreshold = %v, want 0.6", cfg.RouteAcceptThreshold)
	}
	if cfg.ClarifyAcceptThreshold != 0.5 {
		t.Errorf("ClarifyAcceptThreshold = %v, want 0.5", cfg.ClarifyAcceptThreshold)
	}
	if cfg.MaxClarificationAttempts != 2 {
		t.Errorf("MaxClarificationAttempts = %d, want 2", cfg.MaxClarificationAttempts)
	}
	if cfg.SendMaxAttempts != 3 {
		t.Errorf("SendMaxAttempts = %d, want 3", cfg.SendMaxAttempts)
	}
	if len(cfg.UrgencyBypassKeywords) == 0 {
		t.Error("UrgencyBypassKeywords should have defaults")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TRANSLATION_CACHE_SIZE", "50")
	t.Setenv("ESCALATION_TIMEOUT", "30m")
	t.Setenv("URGENCY_BYPASS_KEYWORDS", "help now, sos")
	t.Setenv("HUB_POLL_ENABLED", "true")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.TranslationCacheSize != 50 {
		t.Errorf("TranslationCacheSize = %d, want 50", cfg.TranslationCacheSize)
	}
	if cfg.EscalationTimeout != 30*time.Minute {
		t.Errorf("EscalationTimeout = %v, want 30m", cfg.EscalationTimeout)
	}
	if len(cfg.UrgencyBypassKeywords) != 2 || cfg.UrgencyBypassKeywords[0] != "help now" {
		t.Errorf("UrgencyBypassKeywords = %v, want [help now, sos]", cfg.UrgencyBypassKeywords)
	}
	if !cfg.HubPollEnabled {
		t.Error("HubPollEnabled should be true")
	}
}

func TestDepartmentSpaces(t *testing.T) {
	t.Setenv("SPACE_SALES", "spaces/sales-1")
	t.Setenv("SPACE_TECHNICAL", "spaces/tech-1")

	cfg := Load()

	if cfg.DepartmentSpaces["sales"] != "spaces/sales-1" {
		t.Errorf("sales space = %q", cfg.DepartmentSpaces["sales"])
	}
	if cfg.DepartmentSpaces["technical"] != "spaces/tech-1" {
		t.Errorf("technical space = %q", cfg.DepartmentSpaces["technical"])
	}
	if _, ok := cfg.DepartmentSpaces["design"]; ok {
		t.Error("unset departments should not appear")
	}
}

func TestEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("TRANSLATION_CACHE_SIZE", "not-a-number")
	t.Setenv("ROUTE_ACCEPT_THRESHOLD", "nope")
	t.Setenv("STORE_SWEEP_INTERVAL", "soon")

	cfg := Load()

	if cfg.TranslationCacheSize != 1000 {
		t.Errorf("TranslationCacheSize = %d, want default 1000", cfg.TranslationCacheSize)
	}
	if cfg.RouteAcceptThreshold != 0.6 {
		t.Errorf("RouteAcceptThreshold = %v, want default 0.6", cfg.RouteAcceptThreshold)
	}
	if cfg.StoreSweepInterval != 5*time.Minute {
		t.Errorf("StoreSweepInterval = %v, want default 5m", cfg.StoreSweepInterval)
	}
}
