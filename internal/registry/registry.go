// Package registry implements the session registry (spec §4.3): admission,
// game-file selection, container start/attach/init, lookup, and deletion.
// The registry exclusively owns every Session record it hands out.
package registry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/gatekeeper/internal/admission"
	"github.com/ehrlich-b/gatekeeper/internal/containerrt"
	"github.com/ehrlich-b/gatekeeper/internal/gwconfig"
	"github.com/ehrlich-b/gatekeeper/internal/gwerrors"
	"github.com/ehrlich-b/gatekeeper/internal/logger"
	"github.com/ehrlich-b/gatekeeper/internal/metrics"
	"github.com/ehrlich-b/gatekeeper/internal/taskt"
	"github.com/ehrlich-b/gatekeeper/internal/worker"
)

// Registry maps session id to session record, enforcing the admission
// ceiling and coordinating container lifecycle with the configured runtime.
type Registry struct {
	cfg     gwconfig.Config
	runtime containerrt.Runtime
	sem     *admission.Semaphore

	mu       sync.RWMutex
	sessions map[string]*Session

	gameFiles []string

	randMu sync.Mutex
	rand   *rand.Rand
}

// New builds a registry. rng may be nil, in which case a time-seeded
// source is used; tests pass a seeded *rand.Rand for determinism (spec §9,
// "Deterministic selection must be available for tests").
func New(cfg gwconfig.Config, rt containerrt.Runtime, gameFiles []string, rng *rand.Rand) *Registry {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Registry{
		cfg:       cfg,
		runtime:   rt,
		sem:       admission.New(cfg.MaxSessions),
		sessions:  make(map[string]*Session),
		gameFiles: gameFiles,
		rand:      rng,
	}
}

// ActiveCount returns the number of sessions currently in the map.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Outstanding returns the number of admission permits currently held, for
// the "permits == |sessions|" invariant.
func (r *Registry) Outstanding() int { return r.sem.Outstanding() }

// MaxSessions returns the configured capacity ceiling.
func (r *Registry) MaxSessions() int { return r.cfg.MaxSessions }

// GameFileCount returns how many games were discovered at startup.
func (r *Registry) GameFileCount() int { return len(r.gameFiles) }

// Create admits, starts, attaches, and initializes a new session (spec
// §4.3). On any failure after the permit is acquired, the permit is
// released and the container (if started) is killed; a record whose init
// fails is removed from the map before Create returns.
func (r *Registry) Create(ctx context.Context, gameFile, taskType string) (*Session, error) {
	if !r.sem.TryAcquire() {
		metrics.Default.IncSessionsRejected()
		return nil, gwerrors.NoSlots(r.cfg.MaxSessions)
	}

	chosen, err := r.chooseGameFile(gameFile, taskType)
	if err != nil {
		r.sem.Release()
		return nil, err
	}

	id := uuid.New().String()
	spec := containerrt.StartSpec{
		Image:   r.cfg.DockerImage,
		Command: r.cfg.WorkerCommand,
		Mounts: []containerrt.Mount{
			{HostPath: r.cfg.DataHostPath, ContainerPath: r.cfg.DataContainerPath, ReadOnly: r.cfg.DataVolumeMode == "ro"},
			{HostPath: r.cfg.WorkerProgramHostPath, ContainerPath: r.cfg.WorkerProgramContainerPath, ReadOnly: true},
		},
		Labels:    map[string]string{"alfworld-session": id},
		SessionID: id,
	}

	handle, err := r.runtime.Run(ctx, spec)
	if err != nil {
		r.sem.Release()
		return nil, gwerrors.ContainerErr("start container", err)
	}

	stream, err := r.runtime.Attach(ctx, handle)
	if err != nil {
		r.runtime.Kill(ctx, handle)
		r.sem.Release()
		return nil, gwerrors.ContainerErr("attach container", err)
	}

	sess := &Session{
		ID:        id,
		GameFile:  chosen,
		CreatedAt: time.Now(),
		handle:    handle,
		channel:   worker.New(stream, r.cfg.ExchangeTimeout()),
		status:    StatusActive,
	}

	// Inserted before the init round-trip per spec §3 "Ownership and
	// lifecycle" — a half-initialized session is briefly visible to
	// lookups with status "active" and an empty observation; a step sent
	// to it in that window waits on the channel lock until init finishes.
	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	containerPath := r.toContainerPath(chosen)
	resp := sess.channel.Exchange(map[string]string{"cmd": "init", "game_file": containerPath})
	if status, _ := resp["status"].(string); status != "ok" {
		r.removeFailedInit(ctx, id, handle)
		msg := "unknown error"
		if m, ok := resp["message"].(string); ok && m != "" {
			msg = m
		}
		return nil, gwerrors.ContainerErr(fmt.Sprintf("init failed: %s", msg), nil)
	}

	observation, _ := resp["observation"].(string)
	admissible := toStringSlice(resp["admissible_commands"])
	sess.applyInit(observation, admissible)

	metrics.Default.IncSessionsCreated()
	logger.Info("session created", "session_id", id, "game_file", chosen)
	return sess, nil
}

func (r *Registry) removeFailedInit(ctx context.Context, id string, handle containerrt.Handle) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	r.runtime.Kill(ctx, handle)
	r.sem.Release()
}

// Get looks up a session by id without holding the registry lock across
// any I/O (spec §5).
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, gwerrors.NotFound(id)
	}
	return sess, nil
}

// Delete removes a session from the map, kills its container, and releases
// its permit. It is idempotent: deleting an absent id returns
// session-not-found and does not touch the permit count (spec §8, law:
// "Idempotent delete").
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return gwerrors.NotFound(id)
	}

	if err := r.runtime.Kill(ctx, sess.handle); err != nil {
		logger.Warn("kill failed during delete", "session_id", id, "error", err)
	}
	r.sem.Release()
	metrics.Default.IncSessionsDeleted()
	return nil
}

// DeleteAll attempts deletion of every current session id, ignoring
// individual failures, and returns the ids actually removed.
func (r *Registry) DeleteAll(ctx context.Context) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var deleted []string
	for _, id := range ids {
		if err := r.Delete(ctx, id); err == nil {
			deleted = append(deleted, id)
		}
	}
	return deleted
}

// IdleSessions returns ids whose last successful step is older than
// maxIdle, for the reaper to evict.
func (r *Registry) IdleSessions(maxIdle time.Duration) []string {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	var idle []string
	for id, sess := range r.sessions {
		if sess.idleFor(now) > maxIdle {
			idle = append(idle, id)
		}
	}
	return idle
}

// chooseGameFile implements spec §9's random selection algorithm: use the
// caller's choice verbatim if given; otherwise filter by task_type, falling
// back to the unrestricted pool if the filter yields nothing, then pick
// uniformly at random from an injectable source.
func (r *Registry) chooseGameFile(gameFile, taskType string) (string, error) {
	if gameFile != "" {
		return gameFile, nil
	}
	if len(r.gameFiles) == 0 {
		return "", gwerrors.ContainerErr("no game files available", nil)
	}

	candidates := r.gameFiles
	if taskType != "" && taskt.Valid(taskType) {
		filtered := make([]string, 0, len(r.gameFiles))
		for _, g := range r.gameFiles {
			if strings.Contains(g, taskType) {
				filtered = append(filtered, g)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	r.randMu.Lock()
	idx := r.rand.Intn(len(candidates))
	r.randMu.Unlock()
	return candidates[idx], nil
}

// toContainerPath rewrites a host data path to the corresponding
// in-container path by prefix substitution. A malformed mount
// configuration (the host prefix missing from the chosen path) falls
// through unchanged — the init exchange will then fail with a
// container-error, which is the intended surface (spec §9).
func (r *Registry) toContainerPath(hostPath string) string {
	if strings.HasPrefix(hostPath, r.cfg.DataHostPath) {
		return r.cfg.DataContainerPath + strings.TrimPrefix(hostPath, r.cfg.DataHostPath)
	}
	return hostPath
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
