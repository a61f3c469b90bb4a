package process

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const readChunkSize = 512

// pipePair owns both ends of one pipe. Closing an end twice is a no-op.
type pipePair struct {
	r, w *os.File
}

func newPipePair() (*pipePair, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &pipePair{r: r, w: w}, nil
}

func (p *pipePair) closeRead() error {
	if p == nil || p.r == nil {
		return nil
	}
	err := p.r.Close()
	p.r = nil
	return err
}

func (p *pipePair) closeWrite() error {
	if p == nil || p.w == nil {
		return nil
	}
	err := p.w.Close()
	p.w = nil
	return err
}

func (p *pipePair) close() error {
	return errors.Join(p.closeRead(), p.closeWrite())
}

// pipeSet is the four pipes of one launch.
type pipeSet struct {
	input   *pipePair
	output  *pipePair
	errput  *pipePair
	control *pipePair
}

// newPipeSet allocates all four pipes or none of them.
func newPipeSet() (*pipeSet, error) {
	var set pipeSet
	for _, slot := range []**pipePair{&set.input, &set.output, &set.errput, &set.control} {
		p, err := newPipePair()
		if err != nil {
			_ = set.close()
			return nil, fmt.Errorf("create pipe: %w", err)
		}
		*slot = p
	}
	return &set, nil
}

// closeChildEnds releases the ends that only the child uses.
func (s *pipeSet) closeChildEnds() error {
	return errors.Join(
		s.input.closeRead(),
		s.output.closeWrite(),
		s.errput.closeWrite(),
		s.control.closeRead(),
	)
}

func (s *pipeSet) close() error {
	return errors.Join(s.input.close(), s.output.close(), s.errput.close(), s.control.close())
}

// readChunk performs a single read from r into buf. A would-block condition
// yields n == 0 without error; eof reports that the writer closed.
func readChunk(r io.Reader, buf []byte) (n int, eof bool, err error) {
	n, err = r.Read(buf)
	switch {
	case err == nil:
		return n, false, nil
	case errors.Is(err, io.EOF):
		return n, true, nil
	case errors.Is(err, unix.EAGAIN):
		return n, false, nil
	default:
		return n, false, err
	}
}

// readPipe reads from r into out until end of stream or a would-block
// condition; eof reports that the writer closed.
func readPipe(r io.Reader, out io.Writer) (eof bool, err error) {
	buf := make([]byte, readChunkSize)
	for {
		n, eof, err := readChunk(r, buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return false, werr
			}
		}
		if err != nil || eof {
			return eof, err
		}
		if n == 0 {
			return false, nil
		}
	}
}

// writePipe writes data and then closes w so the reader sees end-of-input.
func writePipe(w *pipePair, data string) error {
	_, err := io.WriteString(w.w, data)
	if cerr := w.closeWrite(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write standard input: %w", err)
	}
	return nil
}
