// Package reaper removes response files the privileged side never collected.
//
// Collecting a response is the privileged side's job; a script that dies
// between submitting a command and reading its answer leaves the response
// behind. The reaper sweeps the channel directory on a cron schedule and
// deletes response files older than a maximum age. Command files are never
// touched.
package reaper

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/doughall/rootipc/internal/fileio"
)

const (
	// DefaultSchedule runs a sweep every five minutes.
	DefaultSchedule = "@every 5m"

	// DefaultMaxAge is how long a response may wait for collection.
	DefaultMaxAge = 10 * time.Minute
)

// Reaper sweeps one channel directory.
type Reaper struct {
	dir            string
	responsePrefix string
	maxAge         time.Duration
	fs             fileio.FS
	cron           *cron.Cron
	logger         *slog.Logger
}

// New creates a reaper for response files named <responsePrefix>_* in dir.
func New(dir, responsePrefix string, maxAge time.Duration, logger *slog.Logger) *Reaper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Reaper{
		dir:            dir,
		responsePrefix: responsePrefix,
		maxAge:         maxAge,
		fs:             fileio.Local{},
		logger:         logger.With(slog.String("component", "reaper")),
	}
}

// Start schedules sweeps with a cron spec; an empty spec uses DefaultSchedule.
func (r *Reaper) Start(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := c.AddFunc(spec, func() { r.Sweep(time.Now()) }); err != nil {
		return err
	}
	r.cron = c
	c.Start()

	r.logger.Info("reaper started",
		slog.String("schedule", spec),
		slog.Duration("max_age", r.maxAge),
	)
	return nil
}

// Sweep deletes response files last modified more than maxAge before now.
// Returns the number removed.
func (r *Reaper) Sweep(now time.Time) int {
	names, err := r.fs.List(r.dir)
	if err != nil {
		r.logger.Debug("sweep skipped", slog.String("error", err.Error()))
		return 0
	}

	cutoff := now.Add(-r.maxAge)
	removed := 0
	for _, name := range names {
		if !strings.HasPrefix(name, r.responsePrefix+"_") {
			continue
		}
		path := filepath.Join(r.dir, name)
		modTime, err := r.fs.ModTime(path)
		if err != nil || !modTime.Before(cutoff) {
			continue
		}
		if err := r.fs.Remove(path); err == nil {
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info("removed uncollected responses", slog.Int("count", removed))
	}
	return removed
}

// Shutdown stops the schedule and waits for a running sweep.
func (r *Reaper) Shutdown(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
