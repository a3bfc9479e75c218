package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
)

var (
	// ErrContainerNotFound reports an unknown container name or id.
	ErrContainerNotFound = errors.New("container not found")
	// ErrContainerNotRunning reports a container without a live init process.
	ErrContainerNotRunning = errors.New("container is not running")
)

type inspector interface {
	ContainerInspect(ctx context.Context, container string) (types.ContainerJSON, error)
	Close() error
}

// Resolver maps container references to the host pid of their init process.
type Resolver struct {
	client     inspector
	clientOnce sync.Once
	clientErr  error
}

// New returns a Resolver talking to the daemon configured in the environment.
// The connection is opened on first use.
func New() *Resolver {
	return &Resolver{}
}

func (r *Resolver) getClient() (inspector, error) {
	r.clientOnce.Do(func() {
		if r.client != nil {
			return
		}
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			r.clientErr = err
			return
		}
		r.client = cli
	})
	return r.client, r.clientErr
}

// PIDs returns the host pid of every referenced container, in reference order.
// Duplicate references yield one pid.
func (r *Resolver) PIDs(ctx context.Context, refs ...string) ([]int, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	cli, err := r.getClient()
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	pids := make([]int, 0, len(refs))
	seen := make(map[int]struct{}, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, errors.New("container reference must not be blank")
		}
		info, err := cli.ContainerInspect(ctx, ref)
		if err != nil {
			if client.IsErrNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, ref)
			}
			return nil, fmt.Errorf("inspect container %s: %w", ref, err)
		}
		pid, err := pidFromInspect(ref, info)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Close releases the daemon connection if one was opened.
func (r *Resolver) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func pidFromInspect(ref string, info types.ContainerJSON) (int, error) {
	if info.ContainerJSONBase == nil || info.State == nil {
		return 0, fmt.Errorf("container %s: inspect returned no state", ref)
	}
	if !info.State.Running || info.State.Pid <= 0 {
		status := info.State.Status
		if status == "" {
			status = "unknown"
		}
		return 0, fmt.Errorf("%w: %s (%s)", ErrContainerNotRunning, ref, status)
	}
	return info.State.Pid, nil
}
