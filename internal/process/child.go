package process

import (
	"encoding/binary"
	"os"
	"runtime"
	"strconv"

	"golang.org/x/sys/unix"
)

const (
	// childInitArg marks a re-execution of this binary as the child-init stage.
	childInitArg = "__launcher-plugin-child-init__"

	// controlFD is where the control pipe's read end lands in the child.
	controlFD = 3

	firstUserFD       = 3
	unboundedFDSweep  = 1024
	childInitArgCount = 4

	// rlimInfinity is RLIM_INFINITY as reported in Rlimit.Cur on Linux.
	rlimInfinity = ^uint64(0)
)

// RunChildInitIfRequested runs the child-init stage and never returns when
// this process was started as one. Call it first thing in main (and TestMain).
//
// The stage is entered with stdio already connected to the launch pipes, the
// control pipe on descriptor 3 and the process leading its own group. It
// closes every other inherited descriptor and execs the sandbox helper.
func RunChildInitIfRequested() {
	if len(os.Args) < childInitArgCount || os.Args[1] != childInitArg {
		return
	}
	limit, err := strconv.ParseUint(os.Args[2], 10, 64)
	if err != nil {
		os.Exit(ChildSetupExitCode)
	}
	newChildPhase(limit).run(os.Args[3], os.Args[3:], os.Environ())
}

// childPhase is the only code that runs between starting the child and
// replacing it with the sandbox helper. It is limited to raw system calls:
// set the process group, clear the signal mask, close descriptors, exec, exit.
type childPhase struct {
	fdLimit uint64
}

func newChildPhase(fdLimit uint64) childPhase {
	if fdLimit == rlimInfinity {
		fdLimit = unboundedFDSweep
	}
	return childPhase{fdLimit: fdLimit}
}

func (c childPhase) run(path string, argv, env []string) {
	runtime.LockOSThread()

	if unix.Getpgrp() != unix.Getpid() {
		if err := unix.Setpgid(0, 0); err != nil {
			c.fail()
		}
	}

	var empty unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_SETMASK, &empty, nil); err != nil {
		c.fail()
	}

	if !c.closeListed() {
		c.sweep()
	}
	c.closeFD(controlFD)

	_ = unix.Exec(path, argv, env)
	c.fail()
}

// closeListed closes each descriptor read from the control pipe up to the
// terminator. It reports false when the list could not be read completely or
// was empty, in which case the caller must sweep.
func (c childPhase) closeListed() bool {
	var buf [4]byte
	read := false
	for {
		if !c.readFull(buf[:]) {
			return false
		}
		fd := int32(binary.NativeEndian.Uint32(buf[:]))
		if fd == fdListEnd {
			return read
		}
		read = true
		if fd >= firstUserFD && uint64(fd) < c.fdLimit && fd != controlFD {
			c.closeInherited(int(fd))
		}
	}
}

func (c childPhase) readFull(buf []byte) bool {
	for off := 0; off < len(buf); {
		n, err := unix.Read(controlFD, buf[off:])
		switch {
		case err == unix.EINTR || err == unix.EAGAIN:
			continue
		case err != nil || n == 0:
			return false
		}
		off += n
	}
	return true
}

func (c childPhase) sweep() {
	for fd := uint64(firstUserFD); fd < c.fdLimit; fd++ {
		if fd != controlFD {
			c.closeInherited(int(fd))
		}
	}
}

// closeInherited closes fd unless it is close-on-exec. Those belong to this
// stage's own runtime and are released by the exec itself.
func (c childPhase) closeInherited(fd int) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil || flags&unix.FD_CLOEXEC != 0 {
		return
	}
	c.closeFD(fd)
}

func (c childPhase) closeFD(fd int) {
	for unix.Close(fd) == unix.EINTR {
	}
}

func (c childPhase) fail() {
	unix.Exit(ChildSetupExitCode)
}
