package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/launcher-plugin/internal/config"
	"github.com/mattjoyce/launcher-plugin/internal/log"
	"github.com/mattjoyce/launcher-plugin/internal/process"
	"github.com/mattjoyce/launcher-plugin/internal/system"
)

type execFlags struct {
	user       string
	workingDir string
	shell      bool
	env        []string
	mounts     []string
	input      string
	stdoutFile string
	stderrFile string
	stream     bool
}

func newExecCmd(flags *globalFlags) *cobra.Command {
	ef := &execFlags{}

	cmd := &cobra.Command{
		Use:   "exec [flags] -- <command> [args...]",
		Short: "Run one command through the sandbox helper",
		Long: "Runs a single command the way the plugin launches jobs and prints its\n" +
			"output. The command's exit status becomes the exit status of exec.\n" +
			"With --shell the arguments are joined into one shell command line.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log.Setup(cfg.Plugin.LogLevel, cfg.Plugin.LogFormat)

			opts, err := ef.options(cfg, system.OSUserResolver{}, args)
			if err != nil {
				return err
			}
			pcfg := process.Config{
				SandboxPath: cfg.Sandbox.Path,
				Logger:      log.WithComponent("exec"),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if ef.stream {
				return runStreaming(ctx, pcfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			return runToCompletion(ctx, pcfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&ef.user, "user", "u", "", "Run as this user (name or uid)")
	f.StringVarP(&ef.workingDir, "workdir", "w", "", "Working directory of the command")
	f.BoolVar(&ef.shell, "shell", false, "Treat the arguments as a shell command line")
	f.StringArrayVarP(&ef.env, "env", "e", nil, "Environment variable NAME=VALUE (repeatable)")
	f.StringArrayVar(&ef.mounts, "mount", nil, "Bind mount HOST:DEST[:ro] (repeatable)")
	f.StringVar(&ef.input, "input", "", "Text written to the command's standard input")
	f.StringVar(&ef.stdoutFile, "stdout-file", "", "Redirect the command's stdout to this file")
	f.StringVar(&ef.stderrFile, "stderr-file", "", "Redirect the command's stderr to this file")
	f.BoolVar(&ef.stream, "stream", false, "Print output as it arrives instead of after exit")
	return cmd
}

func (ef *execFlags) options(cfg *config.Config, users system.UserResolver, args []string) (process.Options, error) {
	opts := process.Options{
		Executable:     args[0],
		Arguments:      args[1:],
		WorkingDir:     ef.workingDir,
		PAMProfile:     cfg.Sandbox.PAMProfile,
		StandardInput:  ef.input,
		StdOutFile:     ef.stdoutFile,
		StdErrFile:     ef.stderrFile,
		IsShellCommand: ef.shell,
	}
	if ef.shell {
		opts.Executable = strings.Join(args, " ")
		opts.Arguments = nil
	}

	if ef.user != "" {
		u, err := users.Resolve(ef.user)
		if err != nil {
			return opts, err
		}
		if u.IsAllUsers() {
			return opts, errors.New("--user must name a single user")
		}
		opts.RunAsUser = u
	}

	for _, kv := range ef.env {
		env, err := parseEnvVariable(kv)
		if err != nil {
			return opts, err
		}
		opts.Environment = append(opts.Environment, env)
	}
	for _, spec := range ef.mounts {
		m, err := parseMount(spec)
		if err != nil {
			return opts, err
		}
		opts.Mounts = append(opts.Mounts, m)
	}
	return opts, nil
}

func parseEnvVariable(kv string) (process.EnvVariable, error) {
	name, value, ok := strings.Cut(kv, "=")
	if !ok || name == "" {
		return process.EnvVariable{}, fmt.Errorf("--env %q: expected NAME=VALUE", kv)
	}
	return process.EnvVariable{Name: name, Value: value}, nil
}

func parseMount(spec string) (process.Mount, error) {
	parts := strings.Split(spec, ":")
	switch {
	case len(parts) == 2:
	case len(parts) == 3 && parts[2] == "ro":
	default:
		return process.Mount{}, fmt.Errorf("--mount %q: expected HOST:DEST[:ro]", spec)
	}
	if parts[0] == "" || parts[1] == "" {
		return process.Mount{}, fmt.Errorf("--mount %q: host and destination are required", spec)
	}
	return process.Mount{
		HostPath:        parts[0],
		DestinationPath: parts[1],
		ReadOnly:        len(parts) == 3,
	}, nil
}

// terminateOnCancel stops the child's process group when ctx ends before done is closed.
func terminateOnCancel(ctx context.Context, done <-chan struct{}, terminate func() error) {
	select {
	case <-ctx.Done():
		_ = terminate()
	case <-done:
	}
}

func runToCompletion(ctx context.Context, cfg process.Config, opts process.Options, stdout, stderr io.Writer) error {
	p, err := process.NewSyncChildProcess(cfg, opts)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go terminateOnCancel(ctx, done, p.Terminate)

	res, err := p.Run()
	_, _ = io.WriteString(stdout, res.StdOut)
	_, _ = io.WriteString(stderr, res.StdErr)
	if err != nil {
		return err
	}
	return exitStatusError(res.ExitCode)
}

func runStreaming(ctx context.Context, cfg process.Config, opts process.Options, stdout, stderr io.Writer) error {
	var (
		mu       sync.Mutex
		exitCode = process.ExitCodeUnknown
		runErr   error
	)
	emit := func(w io.Writer) func(string) {
		return func(chunk string) {
			mu.Lock()
			defer mu.Unlock()
			_, _ = io.WriteString(w, chunk)
		}
	}

	p, err := process.NewAsyncChildProcess(cfg, opts, process.Callbacks{
		OnStandardOutput: emit(stdout),
		OnStandardError:  emit(stderr),
		OnExit:           func(code int) { exitCode = code },
		OnError:          func(err error) { runErr = err },
	})
	if err != nil {
		return err
	}
	if err := p.Run(); err != nil {
		return err
	}

	done := make(chan struct{})
	go terminateOnCancel(ctx, done, p.Terminate)
	p.Wait()
	close(done)

	if runErr != nil {
		return runErr
	}
	return exitStatusError(exitCode)
}

func exitStatusError(code int) error {
	switch {
	case code == 0:
		return nil
	case code < 0:
		return &exitCodeError{code: 1}
	default:
		return &exitCodeError{code: code}
	}
}
