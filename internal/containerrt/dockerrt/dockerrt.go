// Package dockerrt implements containerrt.Runtime against a real Docker
// daemon via github.com/docker/docker/client, the way the pack's Docker
// session code (a sidecar-attach implementation for a different product)
// drives the same API: ContainerCreate + ContainerStart, then
// ContainerAttach for the stdin/stdout stream, then ContainerKill.
package dockerrt

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/ehrlich-b/gatekeeper/internal/containerrt"
)

// Runtime wraps a Docker API client.
type Runtime struct {
	cli *client.Client
}

// New connects to the Docker daemon using the standard environment
// variables (DOCKER_HOST, DOCKER_CERT_PATH, ...), mirroring docker.from_env()
// in the original implementation.
func New() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerrt: connect: %w", err)
	}
	return &Runtime{cli: cli}, nil
}

// Close releases the underlying client's connections.
func (r *Runtime) Close() error { return r.cli.Close() }

type handle struct {
	id string
}

func (h *handle) ID() string { return h.id }

// Run creates and starts a detached worker container with stdin held open
// and auto-removal on exit, labeled with the session id for external
// observability (e.g. `docker ps --filter label=...`).
func (r *Runtime) Run(ctx context.Context, spec containerrt.StartSpec) (containerrt.Handle, error) {
	mounts := make([]container.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, container.Mount{
			Type:     "bind",
			Source:   m.HostPath,
			Target:   m.ContainerPath,
			ReadOnly: m.ReadOnly,
		})
	}

	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	if spec.SessionID != "" {
		labels["gatekeeper-session"] = spec.SessionID
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		OpenStdin:    true,
		StdinOnce:    false,
		Tty:          false,
		AttachStdin:  true,
		AttachStdout: true,
		Labels:       labels,
	}
	hostCfg := &container.HostConfig{
		Mounts:     mounts,
		AutoRemove: true,
	}

	created, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, &dockernetwork.NetworkingConfig{}, nil, "")
	if err != nil {
		return nil, fmt.Errorf("dockerrt: create: %w", err)
	}
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("dockerrt: start %s: %w", created.ID, err)
	}
	return &handle{id: created.ID}, nil
}

// Attach opens a streaming bidirectional attachment requesting stdin+stdout.
func (r *Runtime) Attach(ctx context.Context, h containerrt.Handle) (containerrt.Stream, error) {
	hh, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("dockerrt: attach: wrong handle type %T", h)
	}
	resp, err := r.cli.ContainerAttach(ctx, hh.id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: false,
	})
	if err != nil {
		return nil, fmt.Errorf("dockerrt: attach %s: %w", hh.id, err)
	}
	return &hijackedStream{resp: resp}, nil
}

// hijackedStream adapts the Docker client's hijacked connection — a raw
// net.Conn paired with a buffered Reader that may already hold bytes read
// during protocol negotiation — to the plain io.ReadWriteCloser
// containerrt.Stream expects. Reads must go through resp.Reader, not
// resp.Conn directly, or buffered bytes are lost.
type hijackedStream struct {
	resp   types.HijackedResponse
	closed bool
}

func (s *hijackedStream) Read(p []byte) (int, error) {
	return s.resp.Reader.Read(p)
}

func (s *hijackedStream) Write(p []byte) (int, error) {
	return s.resp.Conn.Write(p)
}

// SetReadDeadline forwards to the underlying connection so the worker
// channel's poll-read loop (internal/worker) can enforce its per-exchange
// timeout against a real daemon, not just the test net.Pipe fake.
func (s *hijackedStream) SetReadDeadline(t time.Time) error {
	return s.resp.Conn.SetReadDeadline(t)
}

func (s *hijackedStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.resp.Close()
	return nil
}

// Kill issues SIGKILL to the container. Errors from an already-gone
// container (stopped, auto-removed) are swallowed — best effort per spec.
func (r *Runtime) Kill(ctx context.Context, h containerrt.Handle) error {
	hh, ok := h.(*handle)
	if !ok {
		return fmt.Errorf("dockerrt: kill: wrong handle type %T", h)
	}
	if err := r.cli.ContainerKill(ctx, hh.id, "KILL"); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		// AutoRemove containers that already exited return a 409/404-ish
		// error here too depending on daemon version; treat any kill
		// failure against a container we can no longer find as benign.
		if _, inspectErr := r.cli.ContainerInspect(ctx, hh.id); inspectErr != nil {
			return nil
		}
		return fmt.Errorf("dockerrt: kill %s: %w", hh.id, err)
	}
	return nil
}
