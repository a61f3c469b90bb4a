package process

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// SyncChildProcess runs a command to completion and collects its output.
type SyncChildProcess struct {
	*childProcess
}

// NewSyncChildProcess prepares a launch. Nothing is started until Run.
func NewSyncChildProcess(cfg Config, opts Options) (*SyncChildProcess, error) {
	p, err := newChildProcess(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &SyncChildProcess{childProcess: p}, nil
}

// Run launches the child, feeds it the launch profile, drains both output
// streams and reaps it. If writing stdin fails the child is terminated, but
// Run still drains and reaps before returning the partial Result with the error.
func (p *SyncChildProcess) Run() (Result, error) {
	result := Result{ExitCode: ExitCodeUnknown}
	if err := p.start(); err != nil {
		p.release()
		if p.Pid() <= 0 {
			return result, err
		}
		_ = p.Terminate()
		code, waitErr := p.wait()
		result.ExitCode = code
		return result, errors.Join(err, waitErr)
	}
	defer p.release()

	var stdout, stderr strings.Builder
	var g errgroup.Group
	var writeErr error

	g.Go(func() error {
		if err := writePipe(p.pipes.input, p.stdin); err != nil {
			writeErr = err
			if terr := p.Terminate(); terr != nil {
				p.logger.Error("failed to terminate child after input error", "error", terr)
			}
		}
		return nil
	})
	g.Go(func() error {
		if _, err := readPipe(p.pipes.output.r, &stdout); err != nil {
			return fmt.Errorf("read standard output: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := readPipe(p.pipes.errput.r, &stderr); err != nil {
			return fmt.Errorf("read standard error: %w", err)
		}
		return nil
	})
	readErr := g.Wait()

	code, waitErr := p.wait()
	result.StdOut = stdout.String()
	result.StdErr = stderr.String()
	result.ExitCode = code

	return result, errors.Join(writeErr, readErr, waitErr)
}
