package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/launcher-plugin/internal/config"
)

// globalFlags are shared by every subcommand that loads configuration.
type globalFlags struct {
	configPath        string
	logLevel          string
	logFormat         string
	heartbeatInterval time.Duration
	threadPoolSize    int
	scratchPath       string
	serverUser        string
	sandboxPath       string
	pamProfile        string
}

// newRootCmd creates the root command. With no subcommand it starts the plugin.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "launcher-plugin",
		Short: "Local job launcher plugin",
		Long: "launcher-plugin answers launcher requests on stdin/stdout and runs\n" +
			"processes through the sandbox helper.",
		Version:       currentVersionInfo().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, flags)
		},
	}
	cmd.SetVersionTemplate("launcher-plugin {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: json or text")
	pf.DurationVar(&flags.heartbeatInterval, "heartbeat-interval", 0, "Expected launcher heartbeat interval (e.g. 5s, 0 disables the watchdog)")
	pf.IntVar(&flags.threadPoolSize, "thread-pool-size", 0, "Number of requests handled concurrently")
	pf.StringVar(&flags.scratchPath, "scratch-path", "", "Directory for plugin state and the PID lock")
	pf.StringVar(&flags.serverUser, "server-user", "", "User that owns the scratch directory")
	pf.StringVar(&flags.sandboxPath, "sandbox-path", "", "Path to the sandbox helper")
	pf.StringVar(&flags.pamProfile, "pam-profile", "", "PAM profile passed to the sandbox helper")

	cmd.AddCommand(
		newStartCmd(flags),
		newExecCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig loads the configuration file and applies any flags the user set.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := func(name string) bool { return cmd.Flags().Changed(name) }

	var o config.Overrides
	if changed("log-level") {
		o.LogLevel = &flags.logLevel
	}
	if changed("log-format") {
		o.LogFormat = &flags.logFormat
	}
	if changed("heartbeat-interval") {
		o.HeartbeatInterval = &flags.heartbeatInterval
	}
	if changed("thread-pool-size") {
		o.ThreadPoolSize = &flags.threadPoolSize
	}
	if changed("scratch-path") {
		o.ScratchPath = &flags.scratchPath
	}
	if changed("server-user") {
		o.ServerUser = &flags.serverUser
	}
	if changed("sandbox-path") {
		o.SandboxPath = &flags.sandboxPath
	}
	if changed("pam-profile") {
		o.PAMProfile = &flags.pamProfile
	}

	if err := cfg.ApplyOverrides(o); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
