package shellutil

import (
	"context"
	"errors"

	"github.com/doughall/rootipc/internal/executor"
)

// ErrBusyboxNotFound is returned by Detect when no busybox is available.
var ErrBusyboxNotFound = errors.New("busybox not found")

// BusyboxDetector finds busybox on the privileged shell's PATH and reports it
// to the callback supplied at construction.
type BusyboxDetector struct {
	shell   executor.Shell
	onFound func(path string)
}

// NewBusyboxDetector creates a detector. onFound may be nil.
func NewBusyboxDetector(sh executor.Shell, onFound func(path string)) *BusyboxDetector {
	return &BusyboxDetector{shell: sh, onFound: onFound}
}

// Detect returns the busybox path and invokes the callback with it.
func (d *BusyboxDetector) Detect(ctx context.Context) (string, error) {
	result, err := d.shell.Run(ctx, "command -v busybox")
	if err != nil {
		return "", err
	}
	lines := result.Lines()
	if !result.Success() || len(lines) == 0 {
		return "", ErrBusyboxNotFound
	}
	path := lines[0]
	if d.onFound != nil {
		d.onFound(path)
	}
	return path, nil
}
