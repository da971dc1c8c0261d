package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benaryorg/lxddns/internal/lxderr"
)

// pendingSet is the per-process mutex-protected set of in-flight
// correlation ids. The mutex is held only across insert/remove/lookup,
// never across anything that blocks.
type pendingSet struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{ids: make(map[uuid.UUID]struct{})}
}

// insert registers id as in flight, failing with DuplicateCorrelationId if
// it is already present.
func (p *pendingSet) insert(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.ids[id]; exists {
		return lxderr.DuplicateCorrelationId.Newf("correlation id %s already in flight", id)
	}
	p.ids[id] = struct{}{}
	return nil
}

// remove tears down the in-flight entry, best-effort: replies that arrive
// afterward will simply find nothing to match and be rejected.
func (p *pendingSet) remove(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ids, id)
}

// contains reports whether id is still tracked as in flight.
func (p *pendingSet) contains(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.ids[id]
	return ok
}

const (
	initialDeadline   = 2000 * time.Millisecond
	deadlineExtension = 250 * time.Millisecond
)

// nextDeadline computes the adaptive deadline after a reply is accepted:
// a pure function of elapsed time since issue and the extension constant,
// kept unit-testable without a live bus. new_deadline = elapsed +
// (elapsed + 2*extension)/2, keeping the window open just long enough to
// absorb stragglers bounded by the fastest responder's latency.
func nextDeadline(elapsed, extension time.Duration) time.Duration {
	return elapsed + (elapsed+2*extension)/2
}
