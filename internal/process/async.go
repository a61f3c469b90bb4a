package process

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Callbacks receive the events of an asynchronous run. Output callbacks may
// be invoked concurrently with each other. OnExit or OnError is called last.
type Callbacks struct {
	OnStandardOutput func(chunk string)
	OnStandardError  func(chunk string)
	OnExit           func(exitCode int)
	OnError          func(err error)
}

// AsyncChildProcess runs a command in the background and reports its output
// through callbacks as it arrives.
type AsyncChildProcess struct {
	*childProcess
	callbacks Callbacks
	done      chan struct{}
	startOnce sync.Once
}

// NewAsyncChildProcess prepares a launch. Nothing is started until Run.
func NewAsyncChildProcess(cfg Config, opts Options, callbacks Callbacks) (*AsyncChildProcess, error) {
	p, err := newChildProcess(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &AsyncChildProcess{
		childProcess: p,
		callbacks:    callbacks,
		done:         make(chan struct{}),
	}, nil
}

// Run starts the child and returns once it is running. Launch failures are
// returned directly and also reported through OnError.
func (p *AsyncChildProcess) Run() error {
	err := errors.New("process already started")
	p.startOnce.Do(func() {
		err = p.start()
		if err != nil {
			p.release()
			if p.Pid() > 0 {
				_ = p.Terminate()
				_, _ = p.wait()
			}
			p.report(0, err)
			close(p.done)
			return
		}
		go p.supervise()
	})
	return err
}

// Wait blocks until the child has been reaped and the final callback has run.
func (p *AsyncChildProcess) Wait() {
	<-p.done
}

func (p *AsyncChildProcess) supervise() {
	defer close(p.done)
	defer p.release()

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := writePipe(p.pipes.input, p.stdin); err != nil {
			errs <- err
			_ = p.Terminate()
		}
	}()
	go func() {
		defer wg.Done()
		if err := streamPipe(p.pipes.output.r, p.callbacks.OnStandardOutput); err != nil {
			errs <- fmt.Errorf("read standard output: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := streamPipe(p.pipes.errput.r, p.callbacks.OnStandardError); err != nil {
			errs <- fmt.Errorf("read standard error: %w", err)
		}
	}()
	wg.Wait()
	close(errs)

	code, err := p.wait()
	if err == nil {
		err = <-errs
	}
	p.report(code, err)
}

func (p *AsyncChildProcess) report(code int, err error) {
	if err != nil {
		if p.callbacks.OnError != nil {
			p.callbacks.OnError(err)
		}
		return
	}
	if p.callbacks.OnExit != nil {
		p.callbacks.OnExit(code)
	}
}

// streamPipe hands each chunk to emit as soon as it is read, until end of stream.
func streamPipe(r io.Reader, emit func(string)) error {
	buf := make([]byte, readChunkSize)
	for {
		n, eof, err := readChunk(r, buf)
		if n > 0 && emit != nil {
			emit(string(buf[:n]))
		}
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}
