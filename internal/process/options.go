// Package process runs commands through the sandbox helper and supervises the
// resulting child: argument and environment assembly, descriptor hygiene in
// the child, concurrent stream draining, and termination of the whole
// process group.
package process

import (
	"errors"

	"github.com/mattjoyce/launcher-plugin/internal/system"
)

const (
	// ExitCodeUnknown is reported when the child was reaped by someone else.
	ExitCodeUnknown = -1

	// ChildSetupExitCode is the status a child exits with when it fails
	// between fork and exec of the sandbox helper.
	ChildSetupExitCode = 153
)

// ErrNotStarted is returned by Terminate before the child has been launched.
var ErrNotStarted = errors.New("process has not been started")

// EnvVariable is one entry of the child's environment overlay.
type EnvVariable struct {
	Name  string
	Value string
}

// Mount binds HostPath into the child's view at DestinationPath.
type Mount struct {
	HostPath        string
	DestinationPath string
	ReadOnly        bool
}

// Options describes a command to launch.
type Options struct {
	// Executable is a program path, or a full shell command when IsShellCommand is set.
	Executable     string
	Arguments      []string
	Environment    []EnvVariable
	WorkingDir     string
	RunAsUser      system.User
	PAMProfile     string
	Password       string
	StandardInput  string
	StdOutFile     string
	StdErrFile     string
	Mounts         []Mount
	IsShellCommand bool
}

// Result is the outcome of a synchronous run.
type Result struct {
	StdOut   string
	StdErr   string
	ExitCode int
}
