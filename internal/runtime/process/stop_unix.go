//go:build !windows

package process

import (
	"context"
	"syscall"

	gops "github.com/shirou/gopsutil/v4/process"
)

func terminate(ctx context.Context, p *gops.Process) error {
	return p.SendSignalWithContext(ctx, syscall.SIGTERM)
}
