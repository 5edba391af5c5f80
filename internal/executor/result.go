// result.go defines the command execution result structure.
package executor

import (
	"strings"
	"time"
)

// Result holds the output of a command execution.
type Result struct {
	// ExitCode is the process exit code. -1 indicates timeout or signal death.
	ExitCode int `json:"exit_code"`

	// Stdout contains the standard output of the command.
	Stdout string `json:"stdout"`

	// Stderr contains the standard error output of the command.
	Stderr string `json:"stderr"`

	// Duration is how long the command took to execute.
	Duration time.Duration `json:"duration_ms"`

	// TimedOut is true if the command was killed due to timeout.
	TimedOut bool `json:"timed_out"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`
}

// Success reports whether the command exited 0 within its timeout.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Lines returns stdout split into trimmed, non-empty lines.
func (r *Result) Lines() []string {
	var lines []string
	for _, line := range strings.Split(r.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
