package config

import (
	"path/filepath"
	"runtime"
	"time"
)

// Config represents the complete launcher plugin configuration.
type Config struct {
	Plugin  PluginConfig  `yaml:"plugin"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Cluster ClusterConfig `yaml:"cluster"`

	// SourcePath is the file the configuration was loaded from, if any.
	SourcePath string `yaml:"-"`
}

// PluginConfig defines core plugin settings.
type PluginConfig struct {
	Name              string        `yaml:"name"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ThreadPoolSize    int           `yaml:"thread_pool_size"`
	ScratchPath       string        `yaml:"scratch_path"`
	ServerUser        string        `yaml:"server_user"`
}

// SandboxConfig locates the sandbox helper used to launch processes.
type SandboxConfig struct {
	Path       string `yaml:"path"`
	PAMProfile string `yaml:"pam_profile,omitempty"`
}

// ClusterConfig is what the plugin reports in CLUSTER_INFO responses.
type ClusterConfig struct {
	Queues               []string                    `yaml:"queues,omitempty"`
	ResourceLimits       []ResourceLimitConfig       `yaml:"resource_limits,omitempty"`
	PlacementConstraints []PlacementConstraintConfig `yaml:"placement_constraints,omitempty"`
	JobConfig            []JobConfigEntry            `yaml:"job_config,omitempty"`
	Containers           ContainerConfig             `yaml:"containers"`
}

// ResourceLimitConfig advertises one kind of resource limit.
type ResourceLimitConfig struct {
	Type         string `yaml:"type"`
	MaxValue     string `yaml:"max_value,omitempty"`
	DefaultValue string `yaml:"default_value,omitempty"`
}

// PlacementConstraintConfig is a selectable node attribute.
type PlacementConstraintConfig struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// JobConfigEntry declares a custom job configuration value.
type JobConfigEntry struct {
	Name      string `yaml:"name"`
	ValueType string `yaml:"value_type"`
	Value     string `yaml:"value,omitempty"`
}

// ContainerConfig is the cluster's image policy.
type ContainerConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Images             []string `yaml:"images,omitempty"`
	DefaultImage       string   `yaml:"default_image,omitempty"`
	AllowUnknownImages bool     `yaml:"allow_unknown_images"`
}

const (
	defaultName        = "local"
	defaultSandboxPath = "/usr/lib/rstudio-server/bin/rsandbox"
	defaultScratchRoot = "/var/lib/launcher"
)

// Defaults returns a Config with the values used when nothing is configured.
func Defaults() *Config {
	return &Config{
		Plugin: PluginConfig{
			Name:              defaultName,
			LogLevel:          "warn",
			HeartbeatInterval: 5 * time.Second,
			ThreadPoolSize:    runtime.NumCPU(),
			ScratchPath:       filepath.Join(defaultScratchRoot, defaultName),
		},
		Sandbox: SandboxConfig{
			Path: defaultSandboxPath,
		},
	}
}
