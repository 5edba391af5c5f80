// client.go is the privileged side of the IPC channels, for root scripts
// written in Go and for tests. It does exactly what a shell script given the
// exported channel configuration would do.
package helper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doughall/rootipc/internal/fileio"
	"github.com/doughall/rootipc/internal/simpleipc"
)

// DefaultPollInterval is how often response files and socket contents are checked.
const DefaultPollInterval = 20 * time.Millisecond

// ErrNoResponse is returned when the context ends before a response arrives.
var ErrNoResponse = errors.New("no response")

// NewRequestID returns a fresh request ID.
func NewRequestID() string {
	return uuid.NewString()
}

// DirClient submits commands to a directory channel.
type DirClient struct {
	config       simpleipc.ShellConfig
	fs           fileio.FS
	pollInterval time.Duration
}

// NewDirClient creates a client for the channel described by cfg.
func NewDirClient(cfg simpleipc.ShellConfig) *DirClient {
	return &DirClient{
		config:       cfg,
		fs:           fileio.Local{},
		pollInterval: DefaultPollInterval,
	}
}

// Submit writes payload as the command file for requestID. The file is
// written under a temporary name and renamed so the watcher sees it whole.
func (c *DirClient) Submit(ctx context.Context, requestID, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp := filepath.Join(c.config.Dir, ".tmp-"+requestID)
	if err := c.fs.Write(tmp, []byte(payload), false); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	if err := c.fs.Chmod(tmp, 0666); err != nil {
		c.fs.Remove(tmp)
		return fmt.Errorf("chmod command: %w", err)
	}
	if err := os.Rename(tmp, c.config.CommandPath(requestID)); err != nil {
		c.fs.Remove(tmp)
		return fmt.Errorf("publish command: %w", err)
	}
	return nil
}

// AwaitResponse polls for the response to requestID, removes the file and
// returns its trimmed contents.
func (c *DirClient) AwaitResponse(ctx context.Context, requestID string) (string, error) {
	path := c.config.ResponsePath(requestID)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if data, err := c.fs.ReadAll(path); err == nil {
			if content := strings.TrimSpace(string(data)); content != "" {
				c.fs.Remove(path)
				return content, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w for %s: %v", ErrNoResponse, requestID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Call sends req under a new request ID and decodes the response.
func (c *DirClient) Call(ctx context.Context, req Request) (*Response, error) {
	data, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	requestID := NewRequestID()
	if err := c.Submit(ctx, requestID, string(data)); err != nil {
		return nil, err
	}

	raw, err := c.AwaitResponse(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !resp.Success && resp.Error != "" {
		return &resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

// SocketClient is the privileged side of a file socket.
type SocketClient struct {
	path         string
	fs           fileio.FS
	pollInterval time.Duration
}

// NewSocketClient creates a client for the shared file at path.
func NewSocketClient(path string) *SocketClient {
	return &SocketClient{
		path:         path,
		fs:           fileio.Local{},
		pollInterval: DefaultPollInterval,
	}
}

// Send overwrites the shared file with data. Any unread message is replaced.
func (c *SocketClient) Send(ctx context.Context, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.fs.Exists(c.path) {
		return fmt.Errorf("socket %s: %w", c.path, fileio.ErrNotFound)
	}
	return c.fs.Write(c.path, []byte(strings.TrimSpace(data)), false)
}

// Receive waits for non-empty content, clears the file and returns it.
func (c *SocketClient) Receive(ctx context.Context) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if data, err := c.fs.ReadAll(c.path); err == nil {
			if content := strings.TrimSpace(string(data)); content != "" {
				c.fs.Write(c.path, nil, false)
				return content, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w on %s: %v", ErrNoResponse, c.path, ctx.Err())
		case <-ticker.C:
		}
	}
}
