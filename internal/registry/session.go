package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/gatekeeper/internal/containerrt"
	"github.com/ehrlich-b/gatekeeper/internal/gwerrors"
	"github.com/ehrlich-b/gatekeeper/internal/worker"
)

// Status is a session's lifecycle state (spec §3).
type Status string

const (
	StatusActive Status = "active"
	StatusDone   Status = "done"
)

// Session is the registry's sole entity (spec §3). Metadata fields are
// guarded by metaMu so GET handlers never race with an in-flight step's
// update; the exchange lock itself lives inside Channel, held for the
// whole stdin-write/stdout-read round trip (spec §4.2, §5). stepMu
// additionally serializes Step itself end-to-end, so a submission that
// arrives while another is in flight waits for it to finish and observes
// its outcome — including a transition to done — before deciding whether
// to forward its own command to the worker (spec §4.5).
type Session struct {
	ID        string
	GameFile  string
	CreatedAt time.Time

	handle  containerrt.Handle
	channel *worker.Channel

	stepMu sync.Mutex

	metaMu             sync.RWMutex
	observation        string
	admissibleCommands []string
	status             Status
	lastActiveAt       time.Time
}

// Snapshot is an immutable copy of a session's client-visible fields, the
// shape the HTTP facade serializes as the "session object" (spec §6).
type Snapshot struct {
	SessionID          string
	GameFile           string
	Observation        string
	AdmissibleCommands []string
	Status             Status
	CreatedAt          time.Time
	LastActiveAt       time.Time
}

// Snapshot returns a consistent copy of the session's current metadata.
func (s *Session) Snapshot() Snapshot {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return Snapshot{
		SessionID:          s.ID,
		GameFile:           s.GameFile,
		Observation:        s.observation,
		AdmissibleCommands: append([]string(nil), s.admissibleCommands...),
		Status:             s.status,
		CreatedAt:          s.CreatedAt,
		LastActiveAt:       s.lastActiveAt,
	}
}

// Status reports the session's current lifecycle state.
func (s *Session) Status() Status {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return s.status
}

// Channel returns the session's worker channel.
func (s *Session) Channel() *worker.Channel { return s.channel }

// ContainerID returns the underlying container handle's id, for logging
// and for tests asserting kill counts against the runtime.
func (s *Session) ContainerID() string { return s.handle.ID() }

// applyInit stores the worker's init response on the session.
func (s *Session) applyInit(observation string, admissibleCommands []string) {
	now := time.Now()
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	s.observation = observation
	s.admissibleCommands = admissibleCommands
	s.status = StatusActive
	s.lastActiveAt = now
}

// applyStep updates metadata after a successful step exchange, marking the
// session done exactly once if the worker reported it terminal.
func (s *Session) applyStep(observation string, admissibleCommands []string, done bool) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	s.observation = observation
	s.admissibleCommands = admissibleCommands
	s.lastActiveAt = time.Now()
	if done {
		s.status = StatusDone
	}
}

// StepResult is the outcome of one worker step exchange (spec §6, "step
// object"), independent of HTTP or batch framing.
type StepResult struct {
	Observation        string
	AdmissibleCommands []string
	Score              float64
	Done               bool
	Won                bool
}

// Step sends one action to the worker and applies the resulting
// observation to the session's metadata (spec §4.5, §8 "Batch isolation").
// Stepping a session whose status is already done is rejected without
// touching the container (spec §4.3, edge case "step after done").
//
// The done-check and the exchange happen inside the same stepMu critical
// section: two concurrent submissions for this session serialize here, so
// whichever runs second sees the first's terminal status (if any) before
// it ever writes to the worker, instead of racing past a done-check taken
// before the worker round trip (spec §3 invariant "terminal state is
// absorbing").
func (s *Session) Step(action string) (StepResult, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	if s.Status() == StatusDone {
		return StepResult{}, gwerrors.AlreadyDone(s.ID)
	}

	resp := s.channel.Exchange(map[string]string{"cmd": "step", "action": action})
	status, _ := resp["status"].(string)
	if status != "ok" {
		msg := "unknown error"
		if m, ok := resp["message"].(string); ok && m != "" {
			msg = m
		}
		return StepResult{}, gwerrors.ContainerErr(fmt.Sprintf("step failed: %s", msg), nil)
	}

	result := StepResult{
		Observation:        asString(resp["observation"]),
		AdmissibleCommands: toStringSlice(resp["admissible_commands"]),
		Score:              asFloat(resp["score"]),
		Done:               asBool(resp["done"]),
		Won:                asBool(resp["won"]),
	}
	s.applyStep(result.Observation, result.AdmissibleCommands, result.Done)
	return result, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// idleFor reports how long the session has gone without a successful step.
func (s *Session) idleFor(now time.Time) time.Duration {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return now.Sub(s.lastActiveAt)
}
