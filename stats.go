package reftable

import "sync/atomic"

// Stats holds process-local, advisory counters for one Stack's lifetime.
// They are never persisted and reset to zero each time a Stack is opened.
type Stats struct {
	attempts       atomic.Int64
	failures       atomic.Int64
	entriesWritten atomic.Int64
}

// Attempts returns the number of compaction attempts made.
func (s *Stats) Attempts() int64 { return s.attempts.Load() }

// Failures returns the number of compaction attempts that did not
// complete (lock contention, narrowing to a no-op, or an execution
// error).
func (s *Stats) Failures() int64 { return s.failures.Load() }

// EntriesWritten returns the cumulative number of records written across
// all compactions run by this Stack.
func (s *Stats) EntriesWritten() int64 { return s.entriesWritten.Load() }
