// Package simpleipc implements a command channel over a watched directory.
//
// The privileged side writes one file per command, named
// <command-prefix>_<request-id>, into a directory owned by this process.
// A watcher picks the file up, reads it once it looks complete, deletes it and
// hands (request-id, command) to the registered handler. Responses go back as
// <response-prefix>_<request-id> in the same directory; the privileged side
// reads and removes them.
//
// Delivery is best effort. A command whose file never looks complete within
// the read retry budget is dropped without notice, and response writes are
// fire-and-forget.
//
// Usage:
//
//	ch, err := simpleipc.New(ctx, cacheDir, rootShell, func(id, cmd string) {
//		ch.SendResponse(id, handle(cmd))
//	})
//	fmt.Print(ch.ShellConfig().Export())
//	defer ch.Cleanup()
package simpleipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doughall/rootipc/internal/executor"
	"github.com/doughall/rootipc/internal/fileio"
	"github.com/doughall/rootipc/internal/namer"
	"github.com/doughall/rootipc/internal/shellutil"
)

const (
	dirMode      os.FileMode = 0777
	responseMode os.FileMode = 0666
)

// ErrClosed is returned by operations on a channel after Cleanup.
var ErrClosed = errors.New("channel closed")

// CommandHandler receives each delivered command. It runs on the channel's
// dispatcher goroutine, so a slow handler delays later commands. It must not
// call Cleanup.
type CommandHandler func(requestID, command string)

// Channel is a watched-directory command channel.
type Channel struct {
	config    ShellConfig
	shell     executor.Shell
	fs        fileio.FS
	onCommand CommandHandler
	ledger    *Ledger
	watcher   *watcher

	readAttempts int
	readDelay    time.Duration
	complete     CompletePredicate
	observer     func(Envelope)

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates the channel directory under baseDir, opens it to the privileged
// side through sh, purges leftovers and starts watching.
// sh may be nil, in which case permissions are changed with the caller's privileges.
func New(ctx context.Context, baseDir string, sh executor.Shell, onCommand CommandHandler, opts ...Option) (*Channel, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cmdPrefix := namer.Random("c", namer.PrefixLength)
	rspPrefix := namer.Random("r", namer.PrefixLength)

	chanCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		config: ShellConfig{
			Dir:            filepath.Join(baseDir, namer.Random("", namer.DirNameLength)),
			CommandPrefix:  cmdPrefix,
			ResponsePrefix: rspPrefix,
		},
		shell:        sh,
		fs:           o.fs,
		onCommand:    onCommand,
		readAttempts: o.readAttempts,
		readDelay:    o.readDelay,
		complete:     o.complete,
		observer:     o.observer,
		ctx:          chanCtx,
		cancel:       cancel,
		logger:       o.logger.With(slog.String("component", "simpleipc")),
	}
	c.ledger = NewLedger(c.logger)

	if err := c.fs.MkdirAll(c.config.Dir, dirMode); err != nil {
		cancel()
		return nil, fmt.Errorf("create ipc dir: %w", err)
	}
	c.loosen(ctx, c.config.Dir, dirMode)
	c.purge()

	w, err := newWatcher(c.config.Dir, c.logger)
	if err != nil {
		cancel()
		c.fs.RemoveAll(c.config.Dir)
		return nil, fmt.Errorf("watch ipc dir: %w", err)
	}
	c.watcher = w

	c.wg.Add(1)
	go c.dispatch()

	c.logger.Info("command channel open",
		slog.String("dir", c.config.Dir),
		slog.String("command_prefix", cmdPrefix),
		slog.String("response_prefix", rspPrefix),
	)
	return c, nil
}

// ShellConfig returns the directory and file prefixes for the privileged side.
func (c *Channel) ShellConfig() ShellConfig {
	return c.config
}

// loosen makes path reachable for the privileged side. The shell is tried
// first; without one, or if it fails, the change is made directly.
func (c *Channel) loosen(ctx context.Context, path string, mode os.FileMode) {
	if c.shell != nil {
		cmd := fmt.Sprintf("chmod %o %s", mode.Perm(), shellutil.EscapeShellArg(path))
		if executor.Succeeded(ctx, c.shell, cmd) {
			return
		}
	}
	if err := c.fs.Chmod(path, mode); err != nil {
		c.logger.Debug("chmod failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// purge deletes every entry in the channel directory without processing it.
func (c *Channel) purge() {
	names, err := c.fs.List(c.config.Dir)
	if err != nil {
		return
	}
	for _, name := range names {
		c.fs.RemoveAll(filepath.Join(c.config.Dir, name))
	}
	if len(names) > 0 {
		c.logger.Debug("purged stale files", slog.Int("count", len(names)))
	}
}

// dispatch processes watcher events one at a time until the watcher closes.
func (c *Channel) dispatch() {
	defer c.wg.Done()
	for ev := range c.watcher.Events() {
		c.handle(ev.Path)
	}
}

func (c *Channel) handle(path string) {
	// Response files and anything else dropped in the directory are ignored
	name := filepath.Base(path)
	prefix := c.config.CommandPrefix + "_"
	if !strings.HasPrefix(name, prefix) {
		return
	}
	requestID := strings.TrimPrefix(name, prefix)
	if requestID == "" {
		return
	}

	modTime, err := c.fs.ModTime(path)
	if err != nil {
		// Already consumed and deleted by an earlier notification
		return
	}
	if !c.ledger.Advance(requestID, modTime) {
		return
	}

	command, ok := c.readComplete(path)
	if !ok {
		c.logger.Debug("abandoning incomplete command",
			slog.String("request_id", requestID),
			slog.Int("attempts", c.readAttempts),
		)
		return
	}

	if err := c.fs.Remove(path); err != nil {
		c.logger.Debug("failed to delete command file",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}

	c.observe(DirectionCommand, requestID, command)
	c.deliver(requestID, command)
}

// readComplete reads path until the trimmed content is non-empty and passes
// the completeness predicate, or the attempts run out.
func (c *Channel) readComplete(path string) (string, bool) {
	for attempt := 0; attempt < c.readAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return "", false
			case <-time.After(c.readDelay):
			}
		}
		data, err := c.fs.ReadAll(path)
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content != "" && c.complete(content) {
			return content, true
		}
	}
	return "", false
}

// deliver invokes the handler; a panic is recovered so the dispatcher survives.
func (c *Channel) deliver(requestID, command string) {
	if c.onCommand == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("command handler panicked",
				slog.String("request_id", requestID),
				slog.Any("panic", r),
			)
		}
	}()
	c.onCommand(requestID, command)
}

func (c *Channel) observe(dir Direction, requestID, payload string) {
	if c.observer == nil {
		return
	}
	c.observer(Envelope{
		Direction: dir,
		RequestID: requestID,
		Payload:   payload,
		At:        time.Now(),
	})
}

// SendResponse writes response for requestID. Failures are logged and dropped.
func (c *Channel) SendResponse(requestID, response string) {
	if err := c.sendResponse(requestID, response); err != nil {
		c.logger.Debug("failed to send response",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Channel) sendResponse(requestID, response string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	path := c.config.ResponsePath(requestID)
	if err := c.fs.Write(path, []byte(response), false); err != nil {
		return err
	}
	c.loosen(c.ctx, path, responseMode)
	c.observe(DirectionResponse, requestID, response)
	return nil
}

// Cleanup stops watching and removes the directory with everything in it.
// Errors are ignored. Safe to call more than once.
func (c *Channel) Cleanup() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.watcher.Close()
		c.wg.Wait()

		if names, err := c.fs.List(c.config.Dir); err == nil {
			for _, name := range names {
				c.fs.Remove(filepath.Join(c.config.Dir, name))
			}
		}
		c.fs.RemoveAll(c.config.Dir)
		c.ledger.Reset()

		c.logger.Info("command channel closed", slog.String("dir", c.config.Dir))
	})
}

// Shutdown implements shutdown.Shutdowner. Cleanup waits for the handler in
// flight; if ctx ends first Shutdown returns ctx.Err() and the cleanup
// finishes in the background.
func (c *Channel) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.Cleanup()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("shutdown deadline reached with a command still in flight")
		return ctx.Err()
	}
}
