package helper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doughall/rootipc/internal/executor"
	"github.com/doughall/rootipc/internal/executor/executortest"
	"github.com/doughall/rootipc/internal/filesocket"
	"github.com/doughall/rootipc/internal/simpleipc"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty IDs, got %q and %q", a, b)
	}
}

func TestDirClientRoundTrip(t *testing.T) {
	var current atomic.Pointer[simpleipc.Channel]
	handler := func(requestID, command string) {
		ch := current.Load()
		var req Request
		if err := json.Unmarshal([]byte(command), &req); err != nil {
			ch.SendResponse(requestID, `{"success":false,"error":"bad request"}`)
			return
		}
		resp := Response{Success: true, Output: req.Payload}
		data, _ := json.Marshal(resp)
		ch.SendResponse(requestID, string(data))
	}

	ch, err := simpleipc.New(context.Background(), t.TempDir(), nil, handler, simpleipc.WithLogger(nopLogger()))
	if err != nil {
		t.Fatalf("simpleipc.New failed: %v", err)
	}
	defer ch.Cleanup()
	current.Store(ch)

	client := NewDirClient(ch.ShellConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, Request{Type: RequestTypeEcho, Payload: json.RawMessage(`{"v":42}`)})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !resp.Success || string(resp.Output) != `{"v":42}` {
		t.Errorf("unexpected response %+v", resp)
	}

	entries, _ := os.ReadDir(ch.ShellConfig().Dir)
	if len(entries) != 0 {
		t.Errorf("expected empty channel dir after round trip, found %d entries", len(entries))
	}
}

func TestDirClientNoResponse(t *testing.T) {
	dir := t.TempDir()
	client := NewDirClient(simpleipc.ShellConfig{Dir: dir, CommandPrefix: "cxxxx", ResponsePrefix: "rxxxx"})

	if err := client.Submit(context.Background(), "id1", `{}`); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cxxxx_id1")); err != nil {
		t.Errorf("command file missing: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.AwaitResponse(ctx, "id1"); !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestDirClientDaemonError(t *testing.T) {
	dir := t.TempDir()
	cfg := simpleipc.ShellConfig{Dir: dir, CommandPrefix: "cxxxx", ResponsePrefix: "rxxxx"}
	client := NewDirClient(cfg)

	// Answer whatever request lands with an error response
	go func() {
		for i := 0; i < 100; i++ {
			entries, _ := os.ReadDir(dir)
			for _, e := range entries {
				name := e.Name()
				if len(name) > 6 && name[:6] == "cxxxx_" {
					os.Remove(filepath.Join(dir, name))
					os.WriteFile(cfg.ResponsePath(name[6:]), []byte(`{"success":false,"error":"denied"}`), 0666)
					return
				}
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Call(ctx, Request{Type: RequestTypePing})
	if err == nil {
		t.Fatal("expected daemon error")
	}
	if resp == nil || resp.Error != "denied" {
		t.Errorf("expected response with error, got %+v", resp)
	}
}

func TestSocketClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot")
	received := make(chan string, 4)
	sock, err := filesocket.New(context.Background(), path,
		filesocket.WithLogger(nopLogger()),
		filesocket.WithShellInitializer(func() (executor.Shell, error) { return &executortest.Shell{}, nil }),
		filesocket.WithPollInterval(10*time.Millisecond),
		filesocket.WithOnContentsChanged(func(s string) { received <- s }),
	)
	if err != nil {
		t.Fatalf("filesocket.New failed: %v", err)
	}
	defer sock.Close()

	client := NewSocketClient(path)
	if err := client.Send(context.Background(), "status?\n"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-received:
		if got != "status?" {
			t.Errorf("expected status?, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("socket did not deliver the message")
	}
}

func TestSocketClientReceive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot")
	os.WriteFile(path, []byte(" reply \n"), 0666)

	client := NewSocketClient(path)
	got, err := client.Receive(context.Background())
	if err != nil || got != "reply" {
		t.Fatalf("Receive = %q, %v", got, err)
	}
	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("Receive should clear the file, found %q", data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := client.Receive(ctx); !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestSocketClientMissingFile(t *testing.T) {
	client := NewSocketClient(filepath.Join(t.TempDir(), "absent"))
	if err := client.Send(context.Background(), "x"); err == nil {
		t.Error("expected error for missing socket file")
	}
}
