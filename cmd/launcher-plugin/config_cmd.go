package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/launcher-plugin/internal/config"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate or lock the configuration file",
	}
	cmd.AddCommand(newConfigCheckCmd(flags), newConfigLockCmd(flags))
	return cmd
}

func newConfigCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Long:  "Loads the configuration with all flags applied, verifies it against\nthe .checksums manifest when one exists, and reports the result.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			source := cfg.SourcePath
			if source == "" {
				source = "(defaults)"
			}
			fmt.Fprintf(out, "Configuration OK: %s\n", source)
			fmt.Fprintf(out, "  name: %s\n", cfg.Plugin.Name)
			fmt.Fprintf(out, "  sandbox: %s\n", cfg.Sandbox.Path)
			fmt.Fprintf(out, "  scratch: %s\n", cfg.Plugin.ScratchPath)
			fmt.Fprintf(out, "  workers: %d\n", cfg.Plugin.ThreadPoolSize)
			fmt.Fprintf(out, "  containers: %t\n", cfg.Cluster.Containers.Enabled)
			return nil
		},
	}
}

func newConfigLockCmd(flags *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Record the configuration file's hash in .checksums",
		Long: "Writes a .checksums manifest with the BLAKE3 hash of the configuration\n" +
			"file. Once present, the plugin refuses to start if the file changes\n" +
			"until it is locked again.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.configPath == "" {
				return errors.New("--config is required")
			}

			res, err := config.Lock(flags.configPath, dryRun)
			if err != nil {
				return fmt.Errorf("failed to lock config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "HASH %s: %s\n", filepath.Base(res.ConfigPath), res.Hash)
			if res.Written {
				fmt.Fprintf(out, "WROTE .checksums: %s\n", res.ChecksumPath)
			} else {
				fmt.Fprintf(out, "DRY-RUN .checksums: %s (not written)\n", res.ChecksumPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute hashes without writing .checksums")
	return cmd
}
