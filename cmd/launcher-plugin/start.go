package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/launcher-plugin/internal/config"
	"github.com/mattjoyce/launcher-plugin/internal/dispatch"
	"github.com/mattjoyce/launcher-plugin/internal/lock"
	"github.com/mattjoyce/launcher-plugin/internal/log"
	"github.com/mattjoyce/launcher-plugin/internal/system"
)

func newStartCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Serve launcher requests on stdin/stdout (default)",
		Long: "Loads the configuration, takes the instance lock in the scratch directory\n" +
			"and answers newline-delimited JSON requests from stdin until stdin closes\n" +
			"or the process receives SIGINT/SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, flags)
		},
	}
}

func runStart(cmd *cobra.Command, flags *globalFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Setup(cfg.Plugin.LogLevel, cfg.Plugin.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("launcher plugin starting", "version", currentVersionInfo().Version, "name", cfg.Plugin.Name, "config", cfg.SourcePath)

	users := system.OSUserResolver{}
	if err := prepareScratch(cfg, users); err != nil {
		logger.Error("failed to prepare scratch directory", "path", cfg.Plugin.ScratchPath, "error", err)
		return err
	}

	pidLockPath := lock.PathFor(cfg.Plugin.ScratchPath, cfg.Plugin.Name)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return err
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, users, cmd.InOrStdin(), cmd.OutOrStdout())
}

func serve(ctx context.Context, cfg *config.Config, users system.UserResolver, in io.Reader, out io.Writer) error {
	logger := log.WithComponent("main")

	err := dispatch.New(cfg, users).Serve(ctx, in, out)
	switch {
	case err == nil:
		logger.Info("launcher closed the connection")
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info("received shutdown signal")
		return nil
	default:
		logger.Error("request loop failed", "error", err)
		return err
	}
}

// prepareScratch creates the scratch directory. When a server user is
// configured it must exist, and the directory is handed to it when running
// as root.
func prepareScratch(cfg *config.Config, users system.UserResolver) error {
	if err := os.MkdirAll(cfg.Plugin.ScratchPath, 0o755); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	if cfg.Plugin.ServerUser == "" {
		return nil
	}

	u, err := users.Resolve(cfg.Plugin.ServerUser)
	if err != nil {
		return fmt.Errorf("server user %q: %w", cfg.Plugin.ServerUser, err)
	}
	if u.IsAllUsers() {
		return errors.New("server user must name a single user")
	}
	if os.Geteuid() != 0 {
		log.WithComponent("main").Warn("not running as root; scratch directory ownership left unchanged",
			"server_user", u.Username)
		return nil
	}
	if err := os.Chown(cfg.Plugin.ScratchPath, u.UID, u.GID); err != nil {
		return fmt.Errorf("chown scratch directory to %s: %w", u.Username, err)
	}
	return nil
}
