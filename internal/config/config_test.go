package config

import "testing"

func TestLoadAppliesDefaultsWithNoEnvironment(t *testing.T) {
	cfg := Load()
	if cfg.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, LogInfo)
	}
	if cfg.HTTPServerPort != 8080 {
		t.Errorf("HTTPServerPort = %d, want 8080", cfg.HTTPServerPort)
	}
	if cfg.MetricsPrefix != "cdp" {
		t.Errorf("MetricsPrefix = %q, want %q", cfg.MetricsPrefix, "cdp")
	}
	if cfg.DeadLetterTarget != "stdout" {
		t.Errorf("DeadLetterTarget = %q, want %q", cfg.DeadLetterTarget, "stdout")
	}
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("HTTP_SERVER_PORT", "9999")
	t.Setenv("BACKPRESSURE_QUEUED_EVENTS", "500")
	t.Setenv("HTTP_CLIENT_BACKOFF_FACTOR", "1.5")
	t.Setenv("HTTP_CLIENT_REJECT_UNAUTHORIZED", "false")

	cfg := Load()
	if cfg.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want %q (lower-cased)", cfg.LogLevel, LogDebug)
	}
	if cfg.HTTPServerPort != 9999 {
		t.Errorf("HTTPServerPort = %d, want 9999", cfg.HTTPServerPort)
	}
	if cfg.BackpressureQueuedEvents != 500 {
		t.Errorf("BackpressureQueuedEvents = %d, want 500", cfg.BackpressureQueuedEvents)
	}
	if cfg.HTTPClientBackoffFactorS != 1.5 {
		t.Errorf("HTTPClientBackoffFactorS = %v, want 1.5", cfg.HTTPClientBackoffFactorS)
	}
	if cfg.HTTPClientRejectUnauthorized {
		t.Error("HTTPClientRejectUnauthorized = true, want false")
	}
}

func TestLoadIgnoresUnparsableNumericOverride(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "not-a-number")
	cfg := Load()
	if cfg.HTTPServerPort != 8080 {
		t.Errorf("expected default port retained on unparsable override, got %d", cfg.HTTPServerPort)
	}
}
