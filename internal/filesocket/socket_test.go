package filesocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/doughall/rootipc/internal/executor"
	"github.com/doughall/rootipc/internal/executor/executortest"
	"github.com/doughall/rootipc/internal/fileio"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) add(msg string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func newSocket(t *testing.T, sh *executortest.Shell, opts ...Option) *Socket {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slot")
	opts = append([]Option{
		WithLogger(nopLogger()),
		WithShellInitializer(func() (executor.Shell, error) { return sh, nil }),
		WithPollInterval(10 * time.Millisecond),
	}, opts...)
	s, err := New(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRecreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot")
	os.WriteFile(path, []byte("stale"), 0600)

	sh := &executortest.Shell{}
	s, err := New(context.Background(), path,
		WithLogger(nopLogger()),
		WithShellInitializer(func() (executor.Shell, error) { return sh, nil }),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	data, err := os.ReadFile(path)
	if err != nil || len(data) != 0 {
		t.Errorf("expected empty file, got %q, %v", data, err)
	}
	cmds := sh.Commands()
	if len(cmds) != 1 || cmds[0] != "chmod 666 '"+path+"'" {
		t.Errorf("expected chmod through dedicated shell, got %q", cmds)
	}
}

func TestNewShellInitFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot")
	_, err := New(context.Background(), path,
		WithLogger(nopLogger()),
		WithShellInitializer(func() (executor.Shell, error) { return nil, errors.New("no root") }),
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("file should not be created when the shell cannot start")
	}
}

func TestReadLoopDeliversAndClears(t *testing.T) {
	got := &collector{}
	s := newSocket(t, &executortest.Shell{}, WithOnContentsChanged(got.add))

	os.WriteFile(s.Path(), []byte("  hello \n"), 0666)

	if !waitFor(t, time.Second, func() bool { return len(got.all()) == 1 }) {
		t.Fatal("message not delivered")
	}
	if got.all()[0] != "hello" {
		t.Errorf("expected trimmed message, got %q", got.all()[0])
	}
	if !waitFor(t, time.Second, func() bool {
		data, _ := os.ReadFile(s.Path())
		return len(data) == 0
	}) {
		t.Error("file should be cleared after delivery")
	}
}

func TestRepeatedMessageDeliveredTwice(t *testing.T) {
	got := &collector{}
	s := newSocket(t, &executortest.Shell{}, WithOnContentsChanged(got.add))
	ctx := context.Background()

	if err := s.Write(ctx, "same"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return len(got.all()) == 1 }) {
		t.Fatal("first message not delivered")
	}
	if !waitFor(t, time.Second, func() bool {
		data, _ := os.ReadFile(s.Path())
		return len(data) == 0
	}) {
		t.Fatal("file not cleared")
	}

	if err := s.Write(ctx, "same"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return len(got.all()) == 2 }) {
		t.Fatalf("second identical message not delivered, got %q", got.all())
	}
}

func TestConsumerPanicKeepsLoop(t *testing.T) {
	got := &collector{}
	s := newSocket(t, &executortest.Shell{}, WithOnContentsChanged(func(msg string) {
		if msg == "boom" {
			panic("consumer failure")
		}
		got.add(msg)
	}))

	os.WriteFile(s.Path(), []byte("boom"), 0666)
	waitFor(t, time.Second, func() bool {
		data, _ := os.ReadFile(s.Path())
		return len(data) == 0
	})
	os.WriteFile(s.Path(), []byte("after"), 0666)

	if !waitFor(t, time.Second, func() bool { return len(got.all()) == 1 }) {
		t.Fatal("loop did not survive panicking consumer")
	}
}

func TestWriteOverwrites(t *testing.T) {
	s := newSocket(t, &executortest.Shell{})
	ctx := context.Background()

	s.Write(ctx, "first message")
	s.Write(ctx, " second \n")

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected last write to win, got %q", data)
	}
}

func TestCloseStopsLoop(t *testing.T) {
	sh := &executortest.Shell{}
	path := filepath.Join(t.TempDir(), "slot")
	got := &collector{}
	s, err := New(context.Background(), path,
		WithLogger(nopLogger()),
		WithShellInitializer(func() (executor.Shell, error) { return sh, nil }),
		WithOnContentsChanged(got.add),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !s.IsOpen() {
		t.Fatal("socket should be open")
	}

	start := time.Now()
	s.Close()
	if elapsed := time.Since(start); elapsed > DefaultPollInterval+50*time.Millisecond {
		t.Errorf("read loop took %v to stop", elapsed)
	}

	if s.IsOpen() {
		t.Error("IsOpen should be false after Close")
	}
	if !sh.Closed() {
		t.Error("dedicated shell should be released")
	}
	if err := s.Write(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestLoopExitsWhenFileRemoved(t *testing.T) {
	s := newSocket(t, &executortest.Shell{}, WithOnContentsChanged(func(string) {}))

	os.Remove(s.Path())

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read loop kept running after the file was removed")
	}
}

func TestWriteRespectsContext(t *testing.T) {
	s := newSocket(t, &executortest.Shell{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either outcome is valid: the write may finish before the cancellation is seen
	if err := s.Write(ctx, "x"); err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestCloseDuringDelivery(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s := newSocket(t, &executortest.Shell{}, WithOnContentsChanged(func(string) {
		once.Do(func() { close(entered) })
		<-release
	}))

	if err := os.WriteFile(s.Path(), []byte("busy"), 0666); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("consumer never ran")
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	if !waitFor(t, time.Second, func() bool { return !s.IsOpen() }) {
		t.Fatal("IsOpen should turn false as soon as Close starts")
	}
	close(release)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the consumer finished")
	}

	if s.IsOpen() {
		t.Error("IsOpen should be false after Close")
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file should stay removed after Close, stat err = %v", err)
	}
}

func TestWriteRacingClose(t *testing.T) {
	s := newSocket(t, &executortest.Shell{})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < cap(errs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Write(context.Background(), "message")
		}()
	}
	s.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrClosed) {
			t.Errorf("unexpected Write error %v", err)
		}
	}
	if s.IsOpen() {
		t.Error("IsOpen should be false after Close")
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("a racing Write recreated the file, stat err = %v", err)
	}
}

func TestWriteAfterFileRemoved(t *testing.T) {
	s := newSocket(t, &executortest.Shell{})
	os.Remove(s.Path())

	if err := s.Write(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Error("Write must not recreate a removed file")
	}
}

// stuckFS refuses to remove files, like a slot owned by another user.
type stuckFS struct {
	fileio.Local
}

func (stuckFS) Remove(string) error { return os.ErrPermission }

func TestNewRemovesStaleFileThroughShell(t *testing.T) {
	sh := &executortest.Shell{}
	path := filepath.Join(t.TempDir(), "slot")
	os.WriteFile(path, []byte("stale"), 0600)

	s, err := New(context.Background(), path,
		WithLogger(nopLogger()),
		WithShellInitializer(func() (executor.Shell, error) { return sh, nil }),
		WithFS(stuckFS{}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	want := "rm -f '" + path + "'"
	found := false
	for _, cmd := range sh.Commands() {
		if cmd == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q through the shell, got %q", want, sh.Commands())
	}
}

func TestDefaultShellIsRoot(t *testing.T) {
	sh, err := defaultShell()
	if err != nil {
		t.Fatalf("defaultShell failed: %v", err)
	}
	e, ok := sh.(*executor.Executor)
	if !ok {
		t.Fatalf("expected *executor.Executor, got %T", sh)
	}
	if e.Shell == "" {
		t.Error("root shell binary should be resolved")
	}
}
