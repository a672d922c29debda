package audit

import (
	"context"
	"sync"
)

// Recorder is a synchronous in-memory Appender for tests and local tooling.
type Recorder struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Append(ctx context.Context, entry *Entry) {
	Prepare(ctx, entry, DefaultSensitiveFields())
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
}

// Entries returns a snapshot of recorded entries.
func (r *Recorder) Entries() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ByAction returns entries of one action type.
func (r *Recorder) ByAction(action Action) []*Entry {
	var out []*Entry
	for _, e := range r.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
