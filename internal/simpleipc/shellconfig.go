package simpleipc

import (
	"fmt"
	"path/filepath"

	"github.com/doughall/rootipc/internal/shellutil"
)

// ShellConfig tells the privileged side where to write commands and where
// responses appear.
type ShellConfig struct {
	Dir            string `json:"dir" yaml:"dir"`
	CommandPrefix  string `json:"command_prefix" yaml:"command_prefix"`
	ResponsePrefix string `json:"response_prefix" yaml:"response_prefix"`
}

// CommandPath is the file the privileged side writes for requestID.
func (c ShellConfig) CommandPath(requestID string) string {
	return filepath.Join(c.Dir, c.CommandPrefix+"_"+requestID)
}

// ResponsePath is the file the response for requestID is written to.
func (c ShellConfig) ResponsePath(requestID string) string {
	return filepath.Join(c.Dir, c.ResponsePrefix+"_"+requestID)
}

// Export renders shell variable assignments for a root script to eval.
func (c ShellConfig) Export() string {
	return fmt.Sprintf("IPC_DIR=%s\nIPC_CMD_PREFIX=%s\nIPC_RSP_PREFIX=%s\n",
		shellutil.EscapeShellArg(c.Dir),
		shellutil.EscapeShellArg(c.CommandPrefix),
		shellutil.EscapeShellArg(c.ResponsePrefix),
	)
}
