package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and validates the configuration at configPath. An empty path
// yields the defaults. When a .checksums manifest sits next to the file, the
// file must match its recorded hash.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		cfg := applyConfigDefaults(&Config{})
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	cfg = applyConfigDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfigFile parses a single YAML file after ${VAR} interpolation.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	return &cfg, nil
}

func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := loadChecksums(dir)
	if err != nil {
		if errors.Is(err, errNoChecksums) {
			return nil
		}
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: launcher-plugin config lock --config %s", basename, dir, path)
	}
	if err := verifyHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: launcher-plugin config lock --config %s", path, err, path)
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Plugin.Name == "" {
		cfg.Plugin.Name = defaults.Plugin.Name
	}
	if cfg.Plugin.LogLevel == "" {
		cfg.Plugin.LogLevel = defaults.Plugin.LogLevel
	}
	if cfg.Plugin.HeartbeatInterval == 0 {
		cfg.Plugin.HeartbeatInterval = defaults.Plugin.HeartbeatInterval
	}
	if cfg.Plugin.ThreadPoolSize == 0 {
		cfg.Plugin.ThreadPoolSize = defaults.Plugin.ThreadPoolSize
	}
	if cfg.Plugin.ScratchPath == "" {
		cfg.Plugin.ScratchPath = filepath.Join(defaultScratchRoot, cfg.Plugin.Name)
	}
	if cfg.Sandbox.Path == "" {
		cfg.Sandbox.Path = defaults.Sandbox.Path
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate checks the configuration for values the plugin cannot run with.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Plugin.LogLevel)] {
		return fmt.Errorf("plugin.log_level must be one of: debug, info, warn, error (got %q)", c.Plugin.LogLevel)
	}
	switch strings.ToLower(c.Plugin.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("plugin.log_format must be json or text (got %q)", c.Plugin.LogFormat)
	}
	if c.Plugin.HeartbeatInterval < 0 {
		return fmt.Errorf("plugin.heartbeat_interval must not be negative")
	}
	if c.Plugin.ThreadPoolSize < 1 {
		return fmt.Errorf("plugin.thread_pool_size must be positive (got %d)", c.Plugin.ThreadPoolSize)
	}
	if !filepath.IsAbs(c.Plugin.ScratchPath) {
		return fmt.Errorf("plugin.scratch_path must be absolute (got %q)", c.Plugin.ScratchPath)
	}
	if !filepath.IsAbs(c.Sandbox.Path) {
		return fmt.Errorf("sandbox.path must be absolute (got %q)", c.Sandbox.Path)
	}

	for _, field := range []struct{ name, value string }{
		{"plugin.server_user", c.Plugin.ServerUser},
		{"sandbox.path", c.Sandbox.Path},
		{"sandbox.pam_profile", c.Sandbox.PAMProfile},
		{"plugin.scratch_path", c.Plugin.ScratchPath},
	} {
		if matches := envVarPattern.FindStringSubmatch(field.value); matches != nil {
			return fmt.Errorf("%s: environment variable ${%s} is not set", field.name, matches[1])
		}
	}

	for i, limit := range c.Cluster.ResourceLimits {
		if limit.Type == "" {
			return fmt.Errorf("cluster.resource_limits[%d].type is required", i)
		}
	}
	for i, constraint := range c.Cluster.PlacementConstraints {
		if constraint.Name == "" {
			return fmt.Errorf("cluster.placement_constraints[%d].name is required", i)
		}
	}
	for i, entry := range c.Cluster.JobConfig {
		if entry.Name == "" || entry.ValueType == "" {
			return fmt.Errorf("cluster.job_config[%d]: name and value_type are required", i)
		}
	}

	containers := c.Cluster.Containers
	if !containers.Enabled && (len(containers.Images) > 0 || containers.DefaultImage != "") {
		return fmt.Errorf("cluster.containers: images configured but containers are not enabled")
	}
	if containers.DefaultImage != "" && !containers.AllowUnknownImages {
		found := false
		for _, image := range containers.Images {
			if image == containers.DefaultImage {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("cluster.containers.default_image %q is not in cluster.containers.images", containers.DefaultImage)
		}
	}
	return nil
}
