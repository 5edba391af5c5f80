package shellutil

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/doughall/rootipc/internal/executor"
)

const (
	// MountRetries is the number of extra attempts after the first failed mount.
	MountRetries = 3

	// MountRetryDelay is the pause before each retry.
	MountRetryDelay = 150 * time.Millisecond
)

// mountMu serializes every mount and unmount in the process so the mount
// table is never mutated by two helpers at once.
var mountMu sync.Mutex

// MountEntry is one line of the mount table.
type MountEntry struct {
	Device     string
	Mountpoint string
	Fstype     string
}

// MountTable returns the current mount table.
type MountTable func(ctx context.Context) ([]MountEntry, error)

// SystemMountTable reads the mount table through gopsutil.
func SystemMountTable(ctx context.Context) ([]MountEntry, error) {
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	entries := make([]MountEntry, 0, len(parts))
	for _, p := range parts {
		entries = append(entries, MountEntry{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			Fstype:     p.Fstype,
		})
	}
	return entries, nil
}

// Mounter bind-mounts and unmounts single files through a privileged shell.
type Mounter struct {
	shell      executor.Shell
	table      MountTable
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewMounter creates a Mounter using the system mount table.
func NewMounter(sh executor.Shell, logger *slog.Logger) *Mounter {
	return &Mounter{
		shell:      sh,
		table:      SystemMountTable,
		retryDelay: MountRetryDelay,
		logger:     logger.With(slog.String("component", "mounter")),
	}
}

// SetMountTable replaces the mount table source.
func (m *Mounter) SetMountTable(table MountTable) {
	m.table = table
}

// MountFile bind-mounts src over dst. A failed attempt is retried MountRetries
// times, MountRetryDelay apart. Returns false if every attempt failed.
func (m *Mounter) MountFile(ctx context.Context, src, dst string) bool {
	mountMu.Lock()
	defer mountMu.Unlock()

	command := "mount -o bind " + EscapeShellArgs(src, dst)
	for attempt := 0; attempt <= MountRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(m.retryDelay):
			}
		}
		if executor.Succeeded(ctx, m.shell, command) {
			m.logger.Debug("mounted",
				slog.String("src", src),
				slog.String("dst", dst),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
	}

	m.logger.Warn("mount failed",
		slog.String("src", src),
		slog.String("dst", dst),
		slog.Int("attempts", MountRetries+1),
	)
	return false
}

// UnmountFile unmounts every mount whose mount point is target.
// The first failed umount stops the sequence and returns false.
// A target that is not mounted is not an error.
func (m *Mounter) UnmountFile(ctx context.Context, target string) bool {
	mountMu.Lock()
	defer mountMu.Unlock()

	entries, err := m.table(ctx)
	if err != nil {
		m.logger.Warn("failed to read mount table", slog.String("error", err.Error()))
		return false
	}

	for _, entry := range entries {
		if entry.Mountpoint != target {
			continue
		}
		if !executor.Succeeded(ctx, m.shell, "umount "+EscapeShellArg(entry.Mountpoint)) {
			m.logger.Warn("umount failed",
				slog.String("target", target),
				slog.String("device", entry.Device),
			)
			return false
		}
	}
	return true
}
