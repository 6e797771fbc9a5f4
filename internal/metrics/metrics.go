// Package metrics holds the gateway's in-process counters: sessions
// created/deleted/rejected, batch dispatch sizes, and worker exchange
// latency. The teacher's stack carries no external metrics library, so
// this is plain sync/atomic counters surfaced on GET /health rather than a
// Prometheus-style registry.
package metrics

import (
	"sync/atomic"
	"time"
)

// Counters is a set of independent atomic counters. The zero value is
// ready to use.
type Counters struct {
	sessionsCreated  uint64
	sessionsDeleted  uint64
	sessionsRejected uint64
	batchesFlushed   uint64
	batchItemsTotal  uint64
	exchangeCount    uint64
	exchangeNanos    uint64
}

// Default is the process-wide counters instance, in the same
// package-level-singleton style as logger.Log.
var Default = &Counters{}

// IncSessionsCreated records one successfully created session.
func (c *Counters) IncSessionsCreated() { atomic.AddUint64(&c.sessionsCreated, 1) }

// IncSessionsDeleted records one session removed from the registry,
// whether by explicit delete or idle reap.
func (c *Counters) IncSessionsDeleted() { atomic.AddUint64(&c.sessionsDeleted, 1) }

// IncSessionsRejected records one creation request turned away for lack
// of an admission permit.
func (c *Counters) IncSessionsRejected() { atomic.AddUint64(&c.sessionsRejected, 1) }

// RecordBatch records one dispatch round of size submissions, whether
// that round came from the batch window or an immediate single dispatch.
func (c *Counters) RecordBatch(size int) {
	atomic.AddUint64(&c.batchesFlushed, 1)
	atomic.AddUint64(&c.batchItemsTotal, uint64(size))
}

// RecordExchange records the wall-clock duration of one worker exchange.
func (c *Counters) RecordExchange(d time.Duration) {
	atomic.AddUint64(&c.exchangeCount, 1)
	atomic.AddUint64(&c.exchangeNanos, uint64(d.Nanoseconds()))
}

// Snapshot is a point-in-time, derived view of the counters suitable for
// JSON encoding.
type Snapshot struct {
	SessionsCreated   uint64  `json:"sessions_created"`
	SessionsDeleted   uint64  `json:"sessions_deleted"`
	SessionsRejected  uint64  `json:"sessions_rejected"`
	BatchesFlushed    uint64  `json:"batches_flushed"`
	AvgBatchSize      float64 `json:"avg_batch_size"`
	ExchangeCount     uint64  `json:"exchange_count"`
	AvgExchangeMillis float64 `json:"avg_exchange_ms"`
}

// Snapshot reads every counter and derives the averages /health reports.
func (c *Counters) Snapshot() Snapshot {
	batches := atomic.LoadUint64(&c.batchesFlushed)
	items := atomic.LoadUint64(&c.batchItemsTotal)
	exCount := atomic.LoadUint64(&c.exchangeCount)
	exNanos := atomic.LoadUint64(&c.exchangeNanos)

	snap := Snapshot{
		SessionsCreated:  atomic.LoadUint64(&c.sessionsCreated),
		SessionsDeleted:  atomic.LoadUint64(&c.sessionsDeleted),
		SessionsRejected: atomic.LoadUint64(&c.sessionsRejected),
		BatchesFlushed:   batches,
		ExchangeCount:    exCount,
	}
	if batches > 0 {
		snap.AvgBatchSize = float64(items) / float64(batches)
	}
	if exCount > 0 {
		snap.AvgExchangeMillis = float64(exNanos) / float64(exCount) / float64(time.Millisecond)
	}
	return snap
}
