// su.go locates the su binary that grants root to the privileged shell.
// Android builds ship su in several places depending on the root solution,
// so the well-known locations are probed after $PATH.
package executor

import (
	"errors"
	"os"
	"os/exec"
	"sync"
)

// SuCandidates are probed in order when su is not on $PATH.
var SuCandidates = []string{
	"/system/bin/su",
	"/system/xbin/su",
	"/sbin/su",
	"/debug_ramdisk/su",
}

// ErrSuNotFound is returned when no su binary can be located.
var ErrSuNotFound = errors.New("su binary not found")

// SuLocator caches the located su path to avoid repeated lookups.
type SuLocator struct {
	mu         sync.RWMutex
	path       string
	candidates []string
	lookPath   func(string) (string, error)
}

// NewSuLocator creates a locator probing $PATH and then candidates.
func NewSuLocator(candidates []string) *SuLocator {
	return &SuLocator{
		candidates: candidates,
		lookPath:   exec.LookPath,
	}
}

// Find returns the absolute path of su, or ErrSuNotFound.
func (l *SuLocator) Find() (string, error) {
	l.mu.RLock()
	if l.path != "" {
		path := l.path
		l.mu.RUnlock()
		return path, nil
	}
	l.mu.RUnlock()

	path, err := l.lookPath("su")
	if err != nil {
		path = ""
		for _, candidate := range l.candidates {
			if isExecutable(candidate) {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return "", ErrSuNotFound
	}

	l.mu.Lock()
	l.path = path
	l.mu.Unlock()

	return path, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

// globalLocator backs the package-level FindSu.
var globalLocator = NewSuLocator(SuCandidates)

// FindSu is a convenience function using a global locator.
func FindSu() (string, error) {
	return globalLocator.Find()
}
