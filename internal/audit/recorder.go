package audit

import (
	"context"
	"sync"
)

// Recorder keeps the most recent records in memory. The API serves its
// contents and tests use it to assert on emitted records.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	records  []Record
}

// NewRecorder creates a Recorder holding at most capacity records.
// A capacity <= 0 keeps everything.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{capacity: capacity}
}

func (r *Recorder) Emit(_ context.Context, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	if r.capacity > 0 && len(r.records) > r.capacity {
		r.records = append(r.records[:0:0], r.records[len(r.records)-r.capacity:]...)
	}
}

// Records returns a copy of everything held, oldest first.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Recent returns up to n records, newest first.
func (r *Recorder) Recent(n int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.records) {
		n = len(r.records)
	}
	out := make([]Record, 0, n)
	for i := len(r.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.records[i])
	}
	return out
}

// OfKind returns the held records of one kind, oldest first.
func (r *Recorder) OfKind(kind Kind) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// Reset clears all held records.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = r.records[:0]
	r.mu.Unlock()
}
