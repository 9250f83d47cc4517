package market

import (
	"sync"
	"time"
)

// overlayTTL bounds how long an optimistic mark can override the chain. A
// rental can start and end entirely between reads, in which case the chain
// never reports the property rented and the mark would otherwise stick.
const overlayTTL = 5 * time.Minute

// rentedOverlay holds optimistic "just rented" marks applied after a rent
// transaction confirms but before the chain read path reflects it. A mark
// is dropped when an authoritative read agrees the property is rented, or
// when it outlives overlayTTL; until then it forces the card unavailable.
type rentedOverlay struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	ids map[uint64]time.Time
}

func newRentedOverlay() *rentedOverlay {
	return &rentedOverlay{
		ttl: overlayTTL,
		now: time.Now,
		ids: make(map[uint64]time.Time),
	}
}

func (o *rentedOverlay) mark(propertyID uint64) {
	o.mu.Lock()
	o.ids[propertyID] = o.now()
	o.mu.Unlock()
}

// resolve reconciles the optimistic mark with the chain's answer and returns
// the effective availability.
func (o *rentedOverlay) resolve(propertyID uint64, chainAvailable bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	marked, ok := o.ids[propertyID]
	if !ok {
		return chainAvailable
	}
	if !chainAvailable {
		// The chain caught up; the mark has served its purpose.
		delete(o.ids, propertyID)
		return false
	}
	if o.now().Sub(marked) >= o.ttl {
		// Stale mark; trust the authoritative read again.
		delete(o.ids, propertyID)
		return chainAvailable
	}
	return false
}
