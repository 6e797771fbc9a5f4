// Package batch implements the batch coordinator (spec §4.5, C5): it
// accumulates concurrent per-session step submissions inside a short
// sliding window, then dispatches every accumulated submission's worker
// exchange concurrently via an errgroup, keeping each caller's result
// isolated from the others' successes and failures.
package batch

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/gatekeeper/internal/logger"
	"github.com/ehrlich-b/gatekeeper/internal/metrics"
	"github.com/ehrlich-b/gatekeeper/internal/registry"
)

// submission is one caller's pending step request, queued for the next
// window flush.
type submission struct {
	sess   *registry.Session
	action string
	result chan stepOutcome
}

type stepOutcome struct {
	result registry.StepResult
	err    error
}

// Coordinator batches concurrent Step calls that land within window of
// each other into a single dispatch round.
type Coordinator struct {
	window time.Duration

	mu      chan struct{} // binary mutex guarding pending/timer, buffered 1
	pending []submission
	timer   *time.Timer
}

// New builds a Coordinator that flushes accumulated submissions window
// after the first submission in a round arrives. window == 0 means every
// submission flushes immediately (no batching), used in tests and for a
// degenerate configuration.
func New(window time.Duration) *Coordinator {
	c := &Coordinator{window: window, mu: make(chan struct{}, 1)}
	c.mu <- struct{}{}
	return c
}

// Step submits one session's action for the current (or next) batch
// window and blocks until that session's own exchange completes. Other
// callers' failures never affect this call's result (spec §8, "Batch
// isolation").
func (c *Coordinator) Step(sess *registry.Session, action string) (registry.StepResult, error) {
	if c.window <= 0 {
		metrics.Default.RecordBatch(1)
		return sess.Step(action)
	}

	result := make(chan stepOutcome, 1)
	sub := submission{sess: sess, action: action, result: result}

	<-c.mu
	c.pending = append(c.pending, sub)
	if len(c.pending) == 1 {
		c.timer = time.AfterFunc(c.window, c.flush)
	}
	c.mu <- struct{}{}

	out := <-result
	return out.result, out.err
}

func (c *Coordinator) flush() {
	<-c.mu
	batch := c.pending
	c.pending = nil
	c.timer = nil
	c.mu <- struct{}{}

	if len(batch) == 0 {
		return
	}
	metrics.Default.RecordBatch(len(batch))

	var g errgroup.Group
	for _, sub := range batch {
		sub := sub
		g.Go(func() error {
			result, err := sub.sess.Step(sub.action)
			sub.result <- stepOutcome{result: result, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("batch: unexpected dispatch error", "error", err)
	}
}
