package fileio

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/doughall/rootipc/internal/executor"
	"github.com/doughall/rootipc/internal/shellutil"
)

// Root routes ownership, permission and deletion operations through a
// privileged shell. Content reads and writes go to Local: the unprivileged
// process owns the bytes, root only needs to be able to reach them.
type Root struct {
	Local
	shell executor.Shell
	ctx   context.Context
}

var _ FS = (*Root)(nil)

// NewRoot creates a Root using sh. ctx bounds every shell command.
func NewRoot(ctx context.Context, sh executor.Shell) *Root {
	return &Root{shell: sh, ctx: ctx}
}

func (r *Root) run(command string) error {
	result, err := r.shell.Run(r.ctx, command)
	if err != nil {
		return err
	}
	if !result.Success() {
		return fmt.Errorf("%s: exit %d: %s", command, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Exists checks with test -e so paths the caller cannot stat are still seen.
func (r *Root) Exists(name string) bool {
	return executor.Succeeded(r.ctx, r.shell, "test -e "+shellutil.EscapeShellArg(name))
}

func (r *Root) Remove(name string) error {
	return r.run("rm -f " + shellutil.EscapeShellArg(name))
}

func (r *Root) RemoveAll(name string) error {
	return r.run("rm -rf " + shellutil.EscapeShellArg(name))
}

func (r *Root) Chmod(name string, mode os.FileMode) error {
	return r.run(fmt.Sprintf("chmod %o %s", mode.Perm(), shellutil.EscapeShellArg(name)))
}

// Chown changes owner and group; owner may be "uid" or "uid:gid".
func (r *Root) Chown(name, owner string) error {
	return r.run("chown " + shellutil.EscapeShellArgs(owner, name))
}

func (r *Root) MkdirAll(dir string, mode os.FileMode) error {
	return r.run(fmt.Sprintf("mkdir -p -m %o %s", mode.Perm(), shellutil.EscapeShellArg(dir)))
}
