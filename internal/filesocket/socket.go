// Package filesocket implements a duplex mailbox over a single shared file.
//
// Either side overwrites the file with a message; the owner of the Socket
// polls it, delivers any non-empty content that differs from what it last
// delivered, and immediately empties the file. Emptying the file is what lets
// two identical messages in a row both be seen: detection compares against
// the last delivered value, which is reset to "" once the file is cleared.
//
// The mailbox holds one message. A write that lands before the previous one
// was consumed replaces it and the earlier message is lost. Nothing reports
// the loss; callers that need acknowledgements build them on top.
//
// The Socket owns a dedicated privileged shell used only to fix up the
// file's permissions, so a busy shell elsewhere in the process never holds up
// this channel.
package filesocket

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doughall/rootipc/internal/executor"
	"github.com/doughall/rootipc/internal/fileio"
	"github.com/doughall/rootipc/internal/shellutil"
)

// DefaultPollInterval is the pause between polls of the shared file.
const DefaultPollInterval = 100 * time.Millisecond

const slotMode os.FileMode = 0666

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("file socket closed")

// ShellInitializer creates the socket's dedicated privileged shell.
type ShellInitializer func() (executor.Shell, error)

type options struct {
	initShell    ShellInitializer
	onChanged    func(content string)
	pollInterval time.Duration
	fs           fileio.FS
	logger       *slog.Logger
}

// Option configures a Socket.
type Option func(*options)

// WithShellInitializer sets how the dedicated shell is created.
// Default: defaultShell.
func WithShellInitializer(fn ShellInitializer) Option {
	return func(o *options) { o.initShell = fn }
}

// WithOnContentsChanged registers the consumer. Without it no read loop runs
// and the Socket is write-only. fn runs on the read loop goroutine and must
// not call Close.
func WithOnContentsChanged(fn func(content string)) Option {
	return func(o *options) { o.onChanged = fn }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithFS sets the file primitives. Default: fileio.Local.
func WithFS(fsys fileio.FS) Option {
	return func(o *options) { o.fs = fsys }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Socket is a polled shared-file duplex channel.
type Socket struct {
	path         string
	shell        executor.Shell
	fs           fileio.FS
	onChanged    func(string)
	pollInterval time.Duration
	logger       *slog.Logger

	// writeMu serializes every change to the file. closed is only set while
	// holding it; once set nothing may touch the file again.
	writeMu sync.Mutex
	closed  atomic.Bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New recreates the file at path empty and, if a consumer was given, starts
// polling it on a goroutine bound to ctx.
func New(ctx context.Context, path string, opts ...Option) (*Socket, error) {
	o := options{
		initShell:    defaultShell,
		pollInterval: DefaultPollInterval,
		fs:           fileio.Local{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	sh, err := o.initShell()
	if err != nil {
		return nil, fmt.Errorf("init dedicated shell: %w", err)
	}

	s := &Socket{
		path:         path,
		shell:        sh,
		fs:           o.fs,
		onChanged:    o.onChanged,
		pollInterval: o.pollInterval,
		logger:       o.logger.With(slog.String("component", "filesocket"), slog.String("path", path)),
	}

	s.removeStale(ctx)
	if err := s.fs.Create(path); err != nil {
		sh.Close()
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	s.loosen(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if s.onChanged != nil {
		s.wg.Add(1)
		go s.readLoop(loopCtx)
	}

	s.logger.Info("file socket open", slog.Bool("reading", s.onChanged != nil))
	return s, nil
}

// defaultShell is a root shell using the discovered su binary, or plain
// "su" from PATH when none is found.
func defaultShell() (executor.Shell, error) {
	return executor.NewRoot(""), nil
}

// removeStale deletes a leftover file. A slot left behind by an earlier root
// writer may not be removable by this process, so the dedicated shell retries.
func (s *Socket) removeStale(ctx context.Context) {
	if err := s.fs.Remove(s.path); err == nil {
		return
	}
	if err := fileio.NewRoot(ctx, s.shell).Remove(s.path); err != nil {
		s.logger.Debug("failed to remove stale file", slog.String("error", err.Error()))
	}
}

// loosen opens the file to the privileged side through the dedicated shell,
// falling back to a direct chmod.
func (s *Socket) loosen(ctx context.Context) {
	cmd := fmt.Sprintf("chmod %o %s", slotMode.Perm(), shellutil.EscapeShellArg(s.path))
	if executor.Succeeded(ctx, s.shell, cmd) {
		return
	}
	if err := s.fs.Chmod(s.path, slotMode); err != nil {
		s.logger.Debug("chmod failed", slog.String("error", err.Error()))
	}
}

// readLoop polls the file until it disappears or ctx is done.
func (s *Socket) readLoop(ctx context.Context) {
	defer s.wg.Done()

	lastDelivered := ""
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !s.fs.Exists(s.path) {
			s.logger.Debug("file gone, read loop exiting")
			return
		}

		data, err := s.fs.ReadAll(s.path)
		if err == nil {
			content := strings.TrimSpace(string(data))
			if content != "" && content != lastDelivered {
				lastDelivered = content
				s.deliver(content)

				s.clear()
				lastDelivered = ""
			}
		}

		timer.Reset(s.pollInterval)
	}
}

// clear empties the file unless the socket was closed meanwhile.
func (s *Socket) clear() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return
	}
	if err := s.fs.Overwrite(s.path, nil); err != nil {
		s.logger.Debug("failed to clear file", slog.String("error", err.Error()))
	}
}

func (s *Socket) deliver(content string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("consumer panicked", slog.Any("panic", r))
		}
	}()
	s.onChanged(content)
}

// Write trims data and replaces the file contents with it. The I/O runs on
// its own goroutine; Write returns when it finishes or ctx is done. A Write
// that loses a race with Close, or finds the file gone, returns ErrClosed and
// never recreates the file.
func (s *Socket) Write(ctx context.Context, data string) error {
	if !s.IsOpen() {
		return ErrClosed
	}

	done := make(chan error, 1)
	go func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if s.closed.Load() {
			done <- ErrClosed
			return
		}
		err := s.fs.Overwrite(s.path, []byte(strings.TrimSpace(data)))
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrClosed
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Path returns the shared file's path.
func (s *Socket) Path() string {
	return s.path
}

// IsOpen reports whether the socket has not been closed and its file exists.
func (s *Socket) IsOpen() bool {
	return !s.closed.Load() && s.fs.Exists(s.path)
}

// Close deletes the file, which also ends the read loop, and releases the
// dedicated shell. Errors are ignored. Safe to call more than once.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.closed.Store(true)
		s.fs.Remove(s.path)
		s.writeMu.Unlock()

		s.shell.Close()
		s.cancel()
		s.wg.Wait()
		s.logger.Info("file socket closed")
	})
	return nil
}

// Shutdown implements shutdown.Shutdowner.
func (s *Socket) Shutdown(ctx context.Context) error {
	return s.Close()
}
