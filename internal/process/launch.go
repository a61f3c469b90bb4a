package process

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const stdStreamInherit = 2

type launchContext struct {
	Username string `json:"username"`
	Project  string `json:"project"`
	ID       string `json:"id"`
}

type launchConfig struct {
	Args               []string          `json:"args"`
	Environment        map[string]string `json:"environment"`
	StdInput           string            `json:"stdInput"`
	StdStreamBehavior  int               `json:"stdStreamBehavior"`
	Priority           int               `json:"priority"`
	MemoryLimitBytes   int64             `json:"memoryLimitBytes"`
	StackLimitBytes    int64             `json:"stackLimitBytes"`
	UserProcessesLimit int               `json:"userProcessesLimit"`
	CPULimit           int               `json:"cpuLimit"`
	NiceLimit          int               `json:"niceLimit"`
	FilesLimit         int               `json:"filesLimit"`
	CPUAffinity        []int             `json:"cpuAffinity"`
}

// launchProfile is the document the sandbox helper reads from its stdin.
type launchProfile struct {
	Context        launchContext `json:"context"`
	Password       string        `json:"password"`
	ExecutablePath string        `json:"executablePath"`
	Config         launchConfig  `json:"config"`
}

// escapeArg single-quotes arg for /bin/sh.
func escapeArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}

func runAsUsername(opts Options) string {
	if opts.RunAsUser.IsAllUsers() || opts.RunAsUser.IsEmpty() {
		return ""
	}
	return opts.RunAsUser.Username
}

// buildShellCommand joins the executable and its escaped arguments and
// appends any output redirection.
func buildShellCommand(opts Options) string {
	var b strings.Builder
	b.WriteString(opts.Executable)
	for _, arg := range opts.Arguments {
		b.WriteByte(' ')
		b.WriteString(escapeArg(arg))
	}
	cmd := b.String()

	redirectOut := opts.StdOutFile != ""
	redirectErr := opts.StdErrFile != ""
	sameFile := redirectOut && redirectErr && opts.StdOutFile == opts.StdErrFile

	if opts.IsShellCommand && (redirectOut || redirectErr) {
		cmd = "(" + cmd + ")"
	}
	if redirectOut {
		cmd += " > " + escapeArg(opts.StdOutFile)
	}
	if sameFile {
		cmd += " 2>&1"
	} else if redirectErr {
		cmd += " 2> " + escapeArg(opts.StdErrFile)
	}
	return cmd
}

// buildArguments returns the sandbox helper's argv, starting with its path.
func buildArguments(sandboxPath string, opts Options) []string {
	args := []string{sandboxPath}

	if username := runAsUsername(opts); username != "" {
		args = append(args, "--username", username)
	}
	if opts.WorkingDir != "" {
		args = append(args, "--workingdir", opts.WorkingDir)
	}
	if opts.PAMProfile != "" {
		args = append(args, "--pam-profile", opts.PAMProfile)
	}
	for _, m := range opts.Mounts {
		if m.HostPath == "" {
			continue
		}
		spec := m.HostPath + ":" + m.DestinationPath
		if m.ReadOnly {
			spec += ":ro"
		}
		args = append(args, "--mount", spec)
	}

	return append(args, "/bin/sh", "-c", buildShellCommand(opts))
}

// buildEnvironment renders the overlay as NAME=VALUE entries. PATH is
// inherited from this process unless the overlay sets it.
func buildEnvironment(opts Options) []string {
	env := make([]string, 0, len(opts.Environment)+1)
	pathFound := false
	for _, v := range opts.Environment {
		if v.Name == "PATH" {
			pathFound = true
		}
		env = append(env, v.Name+"="+v.Value)
	}
	if !pathFound {
		env = append(env, "PATH="+os.Getenv("PATH"))
	}
	return env
}

func buildLaunchProfile(opts Options) (string, error) {
	profile := launchProfile{
		Context:        launchContext{Username: runAsUsername(opts)},
		Password:       opts.Password,
		ExecutablePath: opts.Executable,
		Config: launchConfig{
			Args:              []string{},
			Environment:       map[string]string{},
			StdInput:          opts.StandardInput,
			StdStreamBehavior: stdStreamInherit,
			CPUAffinity:       []int{},
		},
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("encode launch profile: %w", err)
	}
	return string(data), nil
}
