package engine

import (
	"sync"

	"github.com/google/uuid"
)

const guardStripes = 128

// guard serializes command execution per aggregate id with striped mutexes.
// Commands against different aggregates proceed in parallel (modulo stripe
// collisions); commands against the same aggregate queue, so only one
// observes any given version.
type guard struct {
	stripes [guardStripes]sync.Mutex
}

func (g *guard) lock(aggregateID uuid.UUID) func() {
	stripe := &g.stripes[stripeFor(aggregateID)]
	stripe.Lock()
	return stripe.Unlock
}

func stripeFor(aggregateID uuid.UUID) int {
	// UUIDs are uniformly random; the low bytes are stripe-grade already.
	return int(uint16(aggregateID[14])<<8|uint16(aggregateID[15])) % guardStripes
}
