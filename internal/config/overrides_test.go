package config

import (
	"testing"
	"time"
)

func TestApplyOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, "plugin:\n  log_level: info\n  thread_pool_size: 2\n"))
	if err != nil {
		t.Fatal(err)
	}

	level := "debug"
	pool := 8
	heartbeat := 30 * time.Second
	if err := cfg.ApplyOverrides(Overrides{
		LogLevel:          &level,
		ThreadPoolSize:    &pool,
		HeartbeatInterval: &heartbeat,
	}); err != nil {
		t.Fatalf("ApplyOverrides() failed: %v", err)
	}

	if cfg.Plugin.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.Plugin.LogLevel)
	}
	if cfg.Plugin.ThreadPoolSize != 8 {
		t.Errorf("thread_pool_size = %d", cfg.Plugin.ThreadPoolSize)
	}
	if cfg.Plugin.HeartbeatInterval != 30*time.Second {
		t.Errorf("heartbeat_interval = %s", cfg.Plugin.HeartbeatInterval)
	}
	if cfg.Sandbox.Path != Defaults().Sandbox.Path {
		t.Errorf("untouched sandbox.path changed to %q", cfg.Sandbox.Path)
	}
}

func TestApplyOverridesRevalidates(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	relative := "rsandbox"
	if err := cfg.ApplyOverrides(Overrides{SandboxPath: &relative}); err == nil {
		t.Fatal("expected validation error for relative sandbox path")
	}
}
