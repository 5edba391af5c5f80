// executor.go implements shell command execution with timeout and process group management.
// It is the privileged-shell collaborator for the IPC channels and shell helpers: a
// command string goes in, success and captured output lines come out.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultTimeout bounds a single command when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// Shell runs command strings. Implementations must be safe for concurrent use.
type Shell interface {
	// Run executes command and returns its result. A non-zero exit is reported
	// through Result, not as an error; errors mean the command could not run.
	Run(ctx context.Context, command string) (*Result, error)

	// Close releases the shell. Further Run calls may fail.
	Close() error
}

// Executor runs shell commands with timeout and output capture.
type Executor struct {
	// Shell is the shell binary used for command execution. Default: /bin/sh
	Shell string

	// Args are placed between Shell and the command. Default: ["-c"]
	Args []string

	// Timeout applies to each Run call. Default: DefaultTimeout
	Timeout time.Duration
}

// New creates an Executor running commands through /bin/sh with the current privileges.
func New() *Executor {
	return &Executor{
		Shell:   "/bin/sh",
		Args:    []string{"-c"},
		Timeout: DefaultTimeout,
	}
}

// NewRoot creates an Executor that runs every command through su -c.
// An empty suPath falls back to FindSu and then to plain "su".
func NewRoot(suPath string) *Executor {
	if suPath == "" {
		if found, err := FindSu(); err == nil {
			suPath = found
		} else {
			suPath = "su"
		}
	}
	return &Executor{
		Shell:   suPath,
		Args:    []string{"-c"},
		Timeout: DefaultTimeout,
	}
}

// Run executes a command with the executor's timeout.
func (e *Executor) Run(ctx context.Context, command string) (*Result, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return e.Execute(ctx, command, timeout)
}

// Close is a no-op; every command runs in its own process.
func (e *Executor) Close() error {
	return nil
}

// Execute runs a command with the given timeout.
// It creates a new process group and kills all processes in the group on timeout.
func (e *Executor) Execute(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, e.Args...), command)
	cmd := exec.CommandContext(execCtx, e.Shell, args...)

	// Create new process group so we can kill all children
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Kill entire process group (negative PID)
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	// WaitDelay ensures orphaned processes don't block Wait()
	cmd.WaitDelay = 5 * time.Second

	return finish(cmd, execCtx, &stdout, &stderr)
}

// RunScript pipes a multi-line script to the shell's stdin instead of passing it with -c.
// Used for scripts built from a channel's exported shell configuration.
func (e *Executor) RunScript(ctx context.Context, script string, timeout time.Duration) (*Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.Shell)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	return finish(cmd, execCtx, &stdout, &stderr)
}

// finish runs cmd and folds its outcome into a Result.
func finish(cmd *exec.Cmd, execCtx context.Context, stdout, stderr *bytes.Buffer) (*Result, error) {
	result := &Result{
		StartedAt: time.Now(),
	}

	err := cmd.Run()
	result.Duration = time.Since(result.StartedAt)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			result.ExitCode = -1
			result.TimedOut = true
			return result, nil
		}

		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}

		// Other error (command not found, permission denied, etc.)
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	result.ExitCode = 0
	return result, nil
}

// Succeeded runs command on sh and reports whether it exited 0.
// Errors are folded into false; callers that need the reason use Run.
func Succeeded(ctx context.Context, sh Shell, command string) bool {
	result, err := sh.Run(ctx, command)
	if err != nil {
		return false
	}
	return result.Success()
}
