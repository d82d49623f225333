package aapns

import (
	"sync"

	"github.com/hde/aapns-go/internal/frame"
)

// streamEventKind tags the union held in a streamEvent, grounded on the
// teacher's approach in streams.go of funneling frame arrivals for a stream
// through a single per-stream channel rather than one channel per frame
// type.
type streamEventKind int

const (
	evHeaders streamEventKind = iota
	evData
	evReset
)

type streamEvent struct {
	kind streamEventKind

	headers    []HeaderField
	endStream  bool
	data       []byte
	resetCode  frame.ErrorCode
}

// streamRecord accumulates the frames that arrive for one stream between
// wakeups of the waiting Post call. Events are buffered in a plain slice
// under a mutex; notify is a size-1 channel so a send that races with a
// drain still causes one additional pass rather than being lost, per
// spec.md section 5's delivery-semantics requirement.
type streamRecord struct {
	id uint32

	mu     sync.Mutex
	events []streamEvent

	notify chan struct{}
}

func newStreamRecord(id uint32) *streamRecord {
	return &streamRecord{
		id:     id,
		notify: make(chan struct{}, 1),
	}
}

// push appends ev and wakes the waiter, if not already woken.
func (r *streamRecord) push(ev streamEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// drain atomically removes and returns all currently buffered events.
func (r *streamRecord) drain() []streamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	ev := r.events
	r.events = nil
	return ev
}

// streamTable is the connection's id -> streamRecord map. A plain
// mutex-guarded map is used here rather than the teacher's sync.Map
// (streams.go), since spec.md section 5 calls for a single owner
// coordinating reads and writes together (insert-then-allocate,
// drain-all-on-close) more often than it calls for the read-mostly,
// disjoint-key access pattern sync.Map is tuned for.
type streamTable struct {
	mu      sync.Mutex
	streams map[uint32]*streamRecord
}

func newStreamTable() *streamTable {
	return &streamTable{streams: make(map[uint32]*streamRecord)}
}

func (t *streamTable) insert(id uint32) *streamRecord {
	r := newStreamRecord(id)
	t.mu.Lock()
	t.streams[id] = r
	t.mu.Unlock()
	return r
}

func (t *streamTable) get(id uint32) (*streamRecord, bool) {
	t.mu.Lock()
	r, ok := t.streams[id]
	t.mu.Unlock()
	return r, ok
}

func (t *streamTable) remove(id uint32) {
	t.mu.Lock()
	delete(t.streams, id)
	t.mu.Unlock()
}

func (t *streamTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

// drainAll removes every stream record and returns them, used when the
// connection is finalizing and every outstanding Post must be woken with
// an error.
func (t *streamTable) drainAll() []*streamRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]*streamRecord, 0, len(t.streams))
	for _, r := range t.streams {
		all = append(all, r)
	}
	t.streams = make(map[uint32]*streamRecord)
	return all
}
