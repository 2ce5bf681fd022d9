// Package dedupe tracks client-supplied job IDs so a repeated submission is
// acknowledged instead of creating a second job.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen job IDs.
type Deduper interface {
	// SeenAndRecord atomically checks id and records it when new.
	// It returns true when id had already been recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a submission that was rejected after claiming
	// it (full queue, store failure) can be retried under the same ID.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type record struct {
	id  string
	seq uint64
}

// inMemoryDeduper keeps IDs in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	maxSize int
	seen    map[string]uint64 // id -> sequence of its live record
	order   []record          // insertion order, including stale records
	seq     uint64
}

// NewInMemoryDeduper creates a deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: 50000}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
	}
	d.seq++
	d.seen[id] = d.seq
	d.order = append(d.order, record{id: id, seq: d.seq})
	d.compact()
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

func (d *inMemoryDeduper) live(r record) bool {
	seq, ok := d.seen[r.id]
	return ok && seq == r.seq
}

// evictOldest drops the oldest live record. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	for len(d.order) > 0 {
		r := d.order[0]
		d.order = d.order[1:]
		if d.live(r) {
			delete(d.seen, r.id)
			return
		}
	}
}

// compact drops stale records once they outnumber live ones. Caller holds d.mu.
func (d *inMemoryDeduper) compact() {
	if len(d.order) <= 2*len(d.seen)+64 {
		return
	}
	kept := make([]record, 0, len(d.seen))
	for _, r := range d.order {
		if d.live(r) {
			kept = append(kept, r)
		}
	}
	d.order = kept
}
