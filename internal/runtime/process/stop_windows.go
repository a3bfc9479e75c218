//go:build windows

package process

import (
	"context"
	"fmt"
	"os"

	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/Paintersrp/rkill/internal/proctree"
)

// terminate sends an interrupt. Windows has no portable graceful signal for
// processes outside our console, so a refusal falls through to Kill.
func terminate(ctx context.Context, p *gops.Process) error {
	proc, err := os.FindProcess(int(p.Pid))
	if err != nil {
		return err
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("%w: interrupt: %v", proctree.ErrAccessDenied, err)
	}
	return nil
}
