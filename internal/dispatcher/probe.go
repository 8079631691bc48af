package dispatcher

import (
	"context"
	"os"

	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// ParentProbe reports whether the process that spawned the bridge is still
// running. Implementations must not signal or otherwise disturb the parent.
type ParentProbe interface {
	Alive(ctx context.Context) bool
}

// ProcessProbe checks the parent pid captured at construction.
type ProcessProbe struct {
	pid    int32
	logger *logger.Logger
}

// NewParentProbe captures the current parent pid.
func NewParentProbe(log *logger.Logger) *ProcessProbe {
	return &ProcessProbe{
		pid:    int32(os.Getppid()),
		logger: log.WithComponent("parent-probe"),
	}
}

// Alive implements ParentProbe. A reparented bridge counts as orphaned even
// if the original pid has since been reused.
func (p *ProcessProbe) Alive(ctx context.Context) bool {
	if int32(os.Getppid()) != p.pid {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, p.pid)
	if err != nil {
		p.logger.Warn("parent liveness probe failed", zap.Int32("pid", p.pid), zap.Error(err))
		return false
	}
	return ok
}
