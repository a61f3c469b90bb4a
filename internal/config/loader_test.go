package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launcher.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "full config",
			yaml: `
plugin:
  name: prod
  log_level: debug
  log_format: json
  heartbeat_interval: 10s
  thread_pool_size: 3
  server_user: rstudio-server
sandbox:
  path: /opt/rsandbox
  pam_profile: su
cluster:
  queues: [default, gpu]
  resource_limits:
    - type: cpuCount
      max_value: "8"
      default_value: "1"
  placement_constraints:
    - name: zone
      value: east
  job_config:
    - name: project
      value_type: string
  containers:
    enabled: true
    images: [r-base, python]
    default_image: r-base
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Plugin.Name != "prod" || cfg.Plugin.LogLevel != "debug" {
					t.Errorf("plugin fields not parsed: %+v", cfg.Plugin)
				}
				if cfg.Plugin.HeartbeatInterval != 10*time.Second {
					t.Errorf("heartbeat_interval = %s", cfg.Plugin.HeartbeatInterval)
				}
				if cfg.Plugin.ThreadPoolSize != 3 {
					t.Errorf("thread_pool_size = %d", cfg.Plugin.ThreadPoolSize)
				}
				if cfg.Plugin.ScratchPath != "/var/lib/launcher/prod" {
					t.Errorf("scratch_path default should follow name, got %q", cfg.Plugin.ScratchPath)
				}
				if cfg.Sandbox.Path != "/opt/rsandbox" || cfg.Sandbox.PAMProfile != "su" {
					t.Errorf("sandbox not parsed: %+v", cfg.Sandbox)
				}
				if len(cfg.Cluster.Queues) != 2 || cfg.Cluster.ResourceLimits[0].MaxValue != "8" {
					t.Errorf("cluster not parsed: %+v", cfg.Cluster)
				}
				if !cfg.Cluster.Containers.Enabled || cfg.Cluster.Containers.DefaultImage != "r-base" {
					t.Errorf("containers not parsed: %+v", cfg.Cluster.Containers)
				}
				if cfg.SourcePath == "" {
					t.Error("SourcePath not recorded")
				}
			},
		},
		{
			name: "empty file uses defaults",
			yaml: "",
			checkFn: func(t *testing.T, cfg *Config) {
				def := Defaults()
				if cfg.Plugin.Name != def.Plugin.Name || cfg.Plugin.HeartbeatInterval != def.Plugin.HeartbeatInterval {
					t.Errorf("defaults not applied: %+v", cfg.Plugin)
				}
				if cfg.Sandbox.Path != def.Sandbox.Path {
					t.Errorf("sandbox default not applied: %q", cfg.Sandbox.Path)
				}
			},
		},
		{
			name: "environment interpolation",
			yaml: `
sandbox:
  path: ${LAUNCHER_TEST_SANDBOX}
`,
			env: map[string]string{"LAUNCHER_TEST_SANDBOX": "/srv/rsandbox"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Sandbox.Path != "/srv/rsandbox" {
					t.Errorf("sandbox.path = %q", cfg.Sandbox.Path)
				}
			},
		},
		{
			name: "unset environment variable",
			yaml: `
plugin:
  server_user: ${LAUNCHER_TEST_UNSET_USER}
`,
			wantErr: "LAUNCHER_TEST_UNSET_USER",
		},
		{
			name:    "unknown key",
			yaml:    "plugin:\n  nmae: typo\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "bad log level",
			yaml:    "plugin:\n  log_level: loud\n",
			wantErr: "plugin.log_level",
		},
		{
			name:    "negative pool",
			yaml:    "plugin:\n  thread_pool_size: -1\n",
			wantErr: "thread_pool_size",
		},
		{
			name:    "relative sandbox",
			yaml:    "sandbox:\n  path: bin/rsandbox\n",
			wantErr: "sandbox.path",
		},
		{
			name: "default image not listed",
			yaml: `
cluster:
  containers:
    enabled: true
    images: [python]
    default_image: r-base
`,
			wantErr: "default_image",
		},
		{
			name: "unknown default image allowed",
			yaml: `
cluster:
  containers:
    enabled: true
    default_image: r-base
    allow_unknown_images: true
`,
		},
		{
			name: "images without containers",
			yaml: `
cluster:
  containers:
    images: [python]
`,
			wantErr: "not enabled",
		},
		{
			name:    "resource limit without type",
			yaml:    "cluster:\n  resource_limits:\n    - max_value: \"1\"\n",
			wantErr: "resource_limits[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadWithoutPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.SourcePath != "" {
		t.Errorf("SourcePath = %q, want empty", cfg.SourcePath)
	}
	if cfg.Plugin.ThreadPoolSize < 1 {
		t.Errorf("ThreadPoolSize = %d", cfg.Plugin.ThreadPoolSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadVerifiesChecksums(t *testing.T) {
	path := writeConfig(t, "plugin:\n  name: locked\n")
	if _, err := Lock(path, false); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after lock failed: %v", err)
	}
	if cfg.Plugin.Name != "locked" {
		t.Errorf("name = %q", cfg.Plugin.Name)
	}

	if err := os.WriteFile(path, []byte("plugin:\n  name: tampered\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "verification failed") {
		t.Fatalf("Load() after edit error = %v", err)
	}
}

func TestLoadRejectsUnlistedFileWhenManifestExists(t *testing.T) {
	path := writeConfig(t, "plugin:\n  name: a\n")
	other := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(other, []byte("plugin:\n  name: b\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(path, false); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(other); err == nil || !strings.Contains(err.Error(), "has no hash") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("LAUNCHER_TEST_HOME", "/home/x")
	got := interpolateEnv("a: ${LAUNCHER_TEST_HOME}\nb: ${LAUNCHER_TEST_NOPE}\nc: $PLAIN")
	want := "a: /home/x\nb: ${LAUNCHER_TEST_NOPE}\nc: $PLAIN"
	if got != want {
		t.Errorf("interpolateEnv() = %q, want %q", got, want)
	}
}
