// Package containerrt defines the narrow interface the session registry
// needs from a container runtime: start a detached worker container,
// attach to its stdin/stdout, and kill it. The registry never imports a
// concrete runtime's types — it only sees this interface, so tests can
// swap in an in-memory fake (see the fakert subpackage) instead of talking
// to a real daemon.
package containerrt

import (
	"context"
	"io"
)

// Mount describes a read-only or read-write bind mount into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// StartSpec describes everything needed to launch one worker container.
type StartSpec struct {
	Image     string
	Command   []string
	Mounts    []Mount
	Labels    map[string]string
	SessionID string // convenience: also present in Labels
}

// Handle is an opaque reference to a running container, sufficient to
// attach to its streams and later kill/remove it. Runtimes may embed
// additional fields; callers outside this package only hold the interface.
type Handle interface {
	// ID returns the runtime-assigned container identifier, for logging.
	ID() string
}

// Stream is the duplex byte stream obtained by attaching to a container's
// stdin/stdout. Reads return raw bytes exactly as received from the
// runtime (including any multiplexing framing); Write sends raw bytes to
// the container's stdin with no added framing.
type Stream interface {
	io.Reader
	io.Writer
	Close() error
}

// Runtime is the set of operations the registry invokes on the container
// daemon. Every method must be safe to call concurrently for distinct
// handles, and Kill/Close must be idempotent against an already-dead or
// already-removed container.
type Runtime interface {
	// Run starts a detached container per spec, with stdin held open and
	// auto-removal on exit, returning a handle.
	Run(ctx context.Context, spec StartSpec) (Handle, error)

	// Attach opens a streaming duplex attachment to the container's
	// stdin+stdout (not stderr — the framing codec tolerates it if present).
	Attach(ctx context.Context, h Handle) (Stream, error)

	// Kill best-effort terminates the container. It must not return an
	// error for a container that is already stopped or already removed.
	Kill(ctx context.Context, h Handle) error
}
