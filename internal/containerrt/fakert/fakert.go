// Package fakert is an in-memory containerrt.Runtime used by registry,
// batch, and HTTP facade tests so they never need a real Docker daemon.
// Each "container" is backed by a goroutine that speaks the worker's
// JSON-line protocol over an in-process pipe, driven by a pluggable
// WorkerFunc so tests can script init/step responses, delays, and failures.
package fakert

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/gatekeeper/internal/containerrt"
)

// WorkerFunc handles one decoded command line and returns the JSON object
// to write back, or an error to simulate the worker crashing/closing.
type WorkerFunc func(cmd map[string]any) (map[string]any, error)

// Runtime is a scriptable fake container runtime.
type Runtime struct {
	mu       sync.Mutex
	worker   WorkerFunc
	running  map[string]*fakeHandle
	nextID   int64
	killed   map[string]int
	killedMu sync.Mutex
}

// New creates a fake runtime that dispatches every worker exchange to fn.
func New(fn WorkerFunc) *Runtime {
	return &Runtime{
		worker:  fn,
		running: make(map[string]*fakeHandle),
		killed:  make(map[string]int),
	}
}

type fakeHandle struct {
	id string
}

func (h *fakeHandle) ID() string { return h.id }

func (r *Runtime) Run(ctx context.Context, spec containerrt.StartSpec) (containerrt.Handle, error) {
	id := fmt.Sprintf("fake-%d", atomic.AddInt64(&r.nextID, 1))
	h := &fakeHandle{id: id}
	r.mu.Lock()
	r.running[id] = h
	r.mu.Unlock()
	return h, nil
}

func (r *Runtime) Attach(ctx context.Context, h containerrt.Handle) (containerrt.Stream, error) {
	fh, ok := h.(*fakeHandle)
	if !ok {
		return nil, fmt.Errorf("fakert: wrong handle type %T", h)
	}
	hostSide, workerSide := net.Pipe()
	go r.serve(fh.id, workerSide)
	return &pipeStream{Conn: hostSide}, nil
}

func (r *Runtime) Kill(ctx context.Context, h containerrt.Handle) error {
	fh, ok := h.(*fakeHandle)
	if !ok {
		return fmt.Errorf("fakert: wrong handle type %T", h)
	}
	r.mu.Lock()
	delete(r.running, fh.id)
	r.mu.Unlock()
	r.killedMu.Lock()
	r.killed[fh.id]++
	r.killedMu.Unlock()
	return nil
}

// KillCount returns how many times Kill was called for the given container
// id — used to assert the "kill issued at most once, at least once" law.
func (r *Runtime) KillCount(id string) int {
	r.killedMu.Lock()
	defer r.killedMu.Unlock()
	return r.killed[id]
}

func (r *Runtime) serve(id string, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		var cmd map[string]any
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			return
		}
		resp, err := r.worker(cmd)
		if err != nil {
			return
		}
		out, _ := json.Marshal(resp)
		out = append(out, '\n')
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

// pipeStream adapts a net.Conn (from net.Pipe) to containerrt.Stream —
// net.Conn already satisfies Read/Write/Close, this just narrows the type.
type pipeStream struct {
	net.Conn
}

var _ containerrt.Stream = (*pipeStream)(nil)
var _ io.ReadWriteCloser = (*pipeStream)(nil)
