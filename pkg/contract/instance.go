// Package contract provides the chassis shared by every settlement
// strategy: the contract instance owning the escrow ledger, the invitation
// facility through which parties join, and the exit-reason taxonomy.
//
// A contract instance is single-threaded by construction: admission and
// settlement for one instance are serialized on its lock, so no two
// settlement decisions ever interleave.
package contract

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradewell/escrow-engine-go/pkg/escrow"
)

// OfferHandler is a strategy's entry point. It receives the freshly
// escrowed seat of an admitted proposal and either settles, refunds, or
// leaves the seat open awaiting a later trigger. The returned string is
// the offer result reported back to the party.
//
// Handlers run with the instance lock held; they must not call back into
// Redeem.
type OfferHandler func(seat *escrow.Seat) (string, error)

// Instance is one deployed contract: a ledger, a logger, and the set of
// outstanding invitations. Strategies embed an *Instance and keep their
// registry and bid state as fields alongside it, never as package state.
type Instance struct {
	mu     sync.Mutex
	ledger *escrow.Ledger
	log    zerolog.Logger

	invitations map[uuid.UUID]*Invitation
}

// NewInstance creates a contract instance with its own empty ledger.
func NewInstance(log zerolog.Logger) *Instance {
	return &Instance{
		ledger:      escrow.NewLedger(log),
		log:         log,
		invitations: make(map[uuid.UUID]*Invitation),
	}
}

// Ledger exposes the instance's escrow ledger to its strategy.
func (in *Instance) Ledger() *escrow.Ledger { return in.ledger }

// Logger returns the instance logger. The pointer keeps zerolog's
// chained calls usable directly on the return value.
func (in *Instance) Logger() *zerolog.Logger { return &in.log }

// Serialize runs fn under the instance lock. Strategy entry points that
// are reachable outside Redeem (timer callbacks, cancels) use this to
// keep the single-threaded discipline.
func (in *Instance) Serialize(fn func() error) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return fn()
}
