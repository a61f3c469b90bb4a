package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/mattjoyce/launcher-plugin/internal/log"
)

// Config locates the executables a launch needs.
type Config struct {
	// SandboxPath is the sandbox helper that switches identity and runs the command.
	SandboxPath string

	// InitPath is the binary re-executed as the child-init stage. It must call
	// RunChildInitIfRequested at startup. Defaults to the running executable.
	InitPath string

	Logger *slog.Logger
}

// childProcess holds the state shared by the sync and async run modes.
type childProcess struct {
	initPath string
	args     []string
	env      []string
	stdin    string
	logger   *slog.Logger

	// sendDescriptors streams the child's descriptor list on the control pipe.
	sendDescriptors func(w io.Writer, pid int, logger *slog.Logger) error

	pid   atomic.Int64
	cmd   *exec.Cmd
	pipes *pipeSet

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

func newChildProcess(cfg Config, opts Options) (*childProcess, error) {
	if cfg.SandboxPath == "" {
		return nil, errors.New("sandbox path is not configured")
	}
	initPath := cfg.InitPath
	if initPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate child-init executable: %w", err)
		}
		initPath = exe
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithComponent("process")
	}

	profile, err := buildLaunchProfile(opts)
	if err != nil {
		return nil, err
	}

	return &childProcess{
		initPath:        initPath,
		args:            buildArguments(cfg.SandboxPath, opts),
		env:             buildEnvironment(opts),
		stdin:           profile,
		logger:          log.WithLaunch(logger, uuid.NewString()),
		sendDescriptors: sendOpenDescriptors,
	}, nil
}

// Pid returns the child's pid, or 0 before it has been started.
func (p *childProcess) Pid() int {
	return int(p.pid.Load())
}

// Terminate sends SIGTERM to the child's process group. A group that has
// already exited, or that contains processes this one may not signal, is
// not an error.
func (p *childProcess) Terminate() error {
	pid := p.Pid()
	if pid <= 0 {
		return ErrNotStarted
	}
	err := unix.Kill(-pid, unix.SIGTERM)
	if err == nil || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("terminate process group %d: %w", pid, err)
}

// start launches the child and completes the descriptor handshake. On error
// every pipe of the launch has been closed.
func (p *childProcess) start() error {
	p.logger.Debug("launching sandbox",
		"args", strings.Join(p.args, " "),
		"launch_profile", redactPassword(p.stdin))

	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return fmt.Errorf("query open file limit: %w", err)
	}

	pipes, err := newPipeSet()
	if err != nil {
		return err
	}

	argv := make([]string, 0, len(p.args)+2)
	argv = append(argv, p.initPath, childInitArg, strconv.FormatUint(limit.Cur, 10))
	argv = append(argv, p.args...)

	cmd := &exec.Cmd{
		Path:        p.initPath,
		Args:        argv,
		Env:         p.env,
		Stdin:       pipes.input.r,
		Stdout:      pipes.output.w,
		Stderr:      pipes.errput.w,
		ExtraFiles:  []*os.File{pipes.control.r},
		SysProcAttr: &syscall.SysProcAttr{Setpgid: true},
	}
	if err := cmd.Start(); err != nil {
		_ = pipes.close()
		return fmt.Errorf("start child: %w", err)
	}

	if err := pipes.closeChildEnds(); err != nil {
		p.logger.Warn("failed to close child pipe ends", "error", err)
	}
	p.cmd = cmd
	p.pipes = pipes
	p.pid.Store(int64(cmd.Process.Pid))

	sendErr := p.sendDescriptors(pipes.control.w, cmd.Process.Pid, p.logger)
	if err := pipes.control.closeWrite(); err != nil && sendErr == nil {
		sendErr = err
	}
	return sendErr
}

// wait reaps the child once. A child reaped elsewhere yields ExitCodeUnknown
// without an error.
func (p *childProcess) wait() (int, error) {
	p.waitOnce.Do(func() {
		p.exitCode, p.waitErr = exitStatus(p.cmd.Wait())
	})
	return p.exitCode, p.waitErr
}

func exitStatus(err error) (int, error) {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		ws, ok := exitErr.Sys().(syscall.WaitStatus)
		if !ok {
			return exitErr.ExitCode(), nil
		}
		if ws.Exited() {
			return ws.ExitStatus(), nil
		}
		return int(ws), nil
	case errors.Is(err, unix.ECHILD):
		return ExitCodeUnknown, nil
	default:
		return ExitCodeUnknown, fmt.Errorf("wait for child: %w", err)
	}
}

// release closes whatever pipe ends are still open.
func (p *childProcess) release() {
	if p.pipes != nil {
		_ = p.pipes.close()
	}
}
