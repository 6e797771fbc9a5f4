package metrics

import (
	"testing"
	"time"
)

func TestSnapshot_AveragesDeriveFromTotals(t *testing.T) {
	c := &Counters{}
	c.IncSessionsCreated()
	c.IncSessionsCreated()
	c.IncSessionsDeleted()
	c.IncSessionsRejected()
	c.RecordBatch(3)
	c.RecordBatch(1)
	c.RecordExchange(10 * time.Millisecond)
	c.RecordExchange(30 * time.Millisecond)

	snap := c.Snapshot()
	if snap.SessionsCreated != 2 || snap.SessionsDeleted != 1 || snap.SessionsRejected != 1 {
		t.Fatalf("unexpected session counts: %+v", snap)
	}
	if snap.BatchesFlushed != 2 {
		t.Fatalf("expected 2 batches flushed, got %d", snap.BatchesFlushed)
	}
	if snap.AvgBatchSize != 2 {
		t.Fatalf("expected avg batch size 2, got %v", snap.AvgBatchSize)
	}
	if snap.ExchangeCount != 2 {
		t.Fatalf("expected 2 exchanges, got %d", snap.ExchangeCount)
	}
	if snap.AvgExchangeMillis != 20 {
		t.Fatalf("expected avg exchange 20ms, got %v", snap.AvgExchangeMillis)
	}
}

func TestSnapshot_ZeroCountersHaveZeroAverages(t *testing.T) {
	c := &Counters{}
	snap := c.Snapshot()
	if snap.AvgBatchSize != 0 || snap.AvgExchangeMillis != 0 {
		t.Fatalf("expected zero averages on empty counters, got %+v", snap)
	}
}
