package commands

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

const hostInfoTimeout = 2 * time.Second

// HostInfo is the output of a host request. It lets a root script confirm
// which machine and kernel the daemon is running on.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	Arch            string `json:"arch"`
	UptimeSec       uint64 `json:"uptime_s"`
	PID             int    `json:"pid"`
	UID             int    `json:"uid"`
}

// collectHost fills HostInfo from gopsutil. Fields gopsutil cannot read
// are left empty.
func collectHost(ctx context.Context, pid, uid int) (HostInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, hostInfoTimeout)
	defer cancel()

	info := HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		PID:  pid,
		UID:  uid,
	}

	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return info, err
	}
	info.Hostname = h.Hostname
	info.Platform = h.Platform
	info.PlatformVersion = h.PlatformVersion
	info.KernelVersion = h.KernelVersion
	info.UptimeSec = h.Uptime
	return info, nil
}
