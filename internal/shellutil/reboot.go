package shellutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/doughall/rootipc/internal/executor"
)

// RebootType selects how the device restarts.
type RebootType int

const (
	RebootNormal RebootType = iota
	// RebootSoft restarts the Android framework without rebooting the kernel.
	RebootSoft
	RebootRecovery
	RebootBootloader
	RebootDownload
	RebootEDL
	RebootPowerOff
)

// ErrUnknownRebootType is returned for values outside the RebootType constants.
var ErrUnknownRebootType = errors.New("unknown reboot type")

var rebootCommands = map[RebootType]string{
	RebootNormal:     "reboot",
	RebootSoft:       "setprop ctl.restart zygote",
	RebootRecovery:   "reboot recovery",
	RebootBootloader: "reboot bootloader",
	RebootDownload:   "reboot download",
	RebootEDL:        "reboot edl",
	RebootPowerOff:   "reboot -p",
}

var rebootNames = map[string]RebootType{
	"normal":     RebootNormal,
	"soft":       RebootSoft,
	"recovery":   RebootRecovery,
	"bootloader": RebootBootloader,
	"download":   RebootDownload,
	"edl":        RebootEDL,
	"poweroff":   RebootPowerOff,
}

// String returns the name accepted by ParseRebootType.
func (t RebootType) String() string {
	for name, v := range rebootNames {
		if v == t {
			return name
		}
	}
	return fmt.Sprintf("RebootType(%d)", int(t))
}

// ParseRebootType maps a name such as "recovery" to its RebootType.
func ParseRebootType(name string) (RebootType, error) {
	if t, ok := rebootNames[name]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRebootType, name)
}

// RebootCommand returns the shell command for t.
func RebootCommand(t RebootType) (string, error) {
	cmd, ok := rebootCommands[t]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownRebootType, int(t))
	}
	return cmd, nil
}

// Reboot runs the command for t on sh. A reboot that works usually kills the
// shell before it reports, so only a failure to start is returned.
func Reboot(ctx context.Context, sh executor.Shell, t RebootType) error {
	cmd, err := RebootCommand(t)
	if err != nil {
		return err
	}
	if _, err := sh.Run(ctx, cmd); err != nil {
		return fmt.Errorf("reboot %s: %w", t, err)
	}
	return nil
}
