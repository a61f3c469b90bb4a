package config

import "time"

// Overrides holds command-line values that take precedence over the file.
// A nil field leaves the loaded value untouched.
type Overrides struct {
	LogLevel          *string
	LogFormat         *string
	HeartbeatInterval *time.Duration
	ThreadPoolSize    *int
	ScratchPath       *string
	ServerUser        *string
	SandboxPath       *string
	PAMProfile        *string
}

// ApplyOverrides merges o into c and revalidates the result.
func (c *Config) ApplyOverrides(o Overrides) error {
	setString(&c.Plugin.LogLevel, o.LogLevel)
	setString(&c.Plugin.LogFormat, o.LogFormat)
	setString(&c.Plugin.ScratchPath, o.ScratchPath)
	setString(&c.Plugin.ServerUser, o.ServerUser)
	setString(&c.Sandbox.Path, o.SandboxPath)
	setString(&c.Sandbox.PAMProfile, o.PAMProfile)
	if o.HeartbeatInterval != nil {
		c.Plugin.HeartbeatInterval = *o.HeartbeatInterval
	}
	if o.ThreadPoolSize != nil {
		c.Plugin.ThreadPoolSize = *o.ThreadPoolSize
	}
	return c.Validate()
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
