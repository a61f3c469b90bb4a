package process

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
)

// fdListEnd terminates the descriptor list sent over the control pipe.
const fdListEnd int32 = -1

// openDescriptors lists the descriptors open in process pid.
func openDescriptors(pid int) ([]int32, error) {
	dir := "/proc/" + strconv.Itoa(pid) + "/fd"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list open descriptors in %s: %w", dir, err)
	}

	fds := make([]int32, 0, len(entries))
	for _, e := range entries {
		fd, err := strconv.ParseInt(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		fds = append(fds, int32(fd))
	}
	return fds, nil
}

// sendOpenDescriptors writes the child's descriptor numbers to w, followed by
// fdListEnd. If enumeration fails only the terminator is sent, which makes
// the child fall back to sweeping every descriptor.
func sendOpenDescriptors(w io.Writer, pid int, logger *slog.Logger) error {
	fds, err := openDescriptors(pid)
	if err != nil {
		logger.Error("failed to enumerate child descriptors", "pid", pid, "error", err)
		fds = nil
	}

	var buf bytes.Buffer
	for _, fd := range append(fds, fdListEnd) {
		if err := binary.Write(&buf, binary.NativeEndian, fd); err != nil {
			return err
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("send descriptor list: %w", err)
	}
	return nil
}
