// Package executortest provides a scripted executor.Shell for tests.
package executortest

import (
	"context"
	"sync"

	"github.com/doughall/rootipc/internal/executor"
)

// Shell records commands and answers them with a caller-supplied function.
type Shell struct {
	mu       sync.Mutex
	commands []string
	closed   bool

	// Respond decides the result of each command. Nil means exit 0, no output.
	Respond func(command string) (*executor.Result, error)
}

// Run records command and returns Respond's answer.
func (s *Shell) Run(ctx context.Context, command string) (*executor.Result, error) {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	respond := s.Respond
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if respond == nil {
		return &executor.Result{}, nil
	}
	return respond(command)
}

// Close marks the shell closed.
func (s *Shell) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Commands returns a copy of every command run so far.
func (s *Shell) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Closed reports whether Close was called.
func (s *Shell) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Exit returns a Result with the given exit code and stdout.
func Exit(code int, stdout string) *executor.Result {
	return &executor.Result{ExitCode: code, Stdout: stdout}
}
