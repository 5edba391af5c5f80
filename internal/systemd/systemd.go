// Package systemd reports daemon state to systemd for Type=notify units.
//
// Every call is a no-op when NOTIFY_SOCKET is unset, so the daemon runs the
// same way from a terminal.
package systemd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)
}

// NewNotifier creates a notifier backed by daemon.SdNotify.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger: logger.With(slog.String("component", "systemd")),
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

// Ready sends READY=1 once the channels are listening.
func (n *Notifier) Ready() bool {
	return n.send(daemon.SdNotifyReady, "ready")
}

// Stopping sends STOPPING=1 before coordinated shutdown begins.
func (n *Notifier) Stopping() bool {
	return n.send(daemon.SdNotifyStopping, "stopping")
}

// Status sends a free-form STATUS= line shown by systemctl status.
func (n *Notifier) Status(status string) bool {
	return n.send("STATUS="+status, "status")
}

func (n *Notifier) send(state, name string) bool {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("failed to send systemd notification",
			slog.String("state", name),
			slog.String("error", err.Error()),
		)
		return false
	}
	if sent {
		n.logger.Debug("sent systemd notification", slog.String("state", name))
	}
	return sent
}

// HealthCheckFunc reports whether the daemon is healthy enough to ping.
type HealthCheckFunc func() bool

// StartWatchdog pings systemd at half the WatchdogSec interval while
// healthCheck passes. It returns immediately when the watchdog is disabled;
// otherwise the loop runs until ctx is cancelled.
func (n *Notifier) StartWatchdog(ctx context.Context, healthCheck HealthCheckFunc) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		n.logger.Debug("watchdog not enabled")
		return
	}

	n.logger.Info("starting systemd watchdog",
		slog.Duration("watchdog_interval", interval),
	)
	go n.watchdogLoop(ctx, interval/2, healthCheck)
}

func (n *Notifier) watchdogLoop(ctx context.Context, interval time.Duration, healthCheck HealthCheckFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !healthCheck() {
				n.logger.Warn("health check failed, skipping watchdog ping")
				continue
			}
			n.send(daemon.SdNotifyWatchdog, "watchdog")
		}
	}
}

// IsRunningUnderSystemd reports whether NOTIFY_SOCKET is set.
func IsRunningUnderSystemd() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
