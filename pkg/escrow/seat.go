// Package escrow holds each party's escrowed allocation and reallocates it
// atomically. A Seat is one party's escrow-backed participation handle; the
// Ledger owns every seat of a contract instance and is the only component
// allowed to mutate allocations. All multi-seat movement goes through
// AtomicRearrange, which applies every transfer leg or none.
package escrow

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

// Seat is a party's participation handle. Fields are mutated only by the
// owning Ledger while it holds its lock; callers see consistent snapshots.
type Seat struct {
	id       uuid.UUID
	owner    common.Address
	pool     bool
	poolName string
	prop     proposal.Proposal

	ledger  *Ledger
	alloc   assets.Allocation
	exited  bool
	settled bool
	exitErr error
}

// ID returns the seat's unique identifier.
func (s *Seat) ID() uuid.UUID { return s.id }

// Owner returns the party address the seat was opened for.
// Pool seats return the zero address.
func (s *Seat) Owner() common.Address { return s.owner }

// IsPool reports whether the seat is a contract-owned aggregate seat.
func (s *Seat) IsPool() bool { return s.pool }

// Proposal returns the admitted proposal. Pool seats have an empty one.
func (s *Seat) Proposal() proposal.Proposal { return s.prop.Clone() }

// CurrentAllocation returns a copy of what is escrowed to the seat's credit.
func (s *Seat) CurrentAllocation() assets.Allocation {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	return s.alloc.Clone()
}

// HasExited reports whether the seat reached a terminal state.
func (s *Seat) HasExited() bool {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	return s.exited
}

// Settled reports whether the seat exited through a successful settlement.
func (s *Seat) Settled() bool {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	return s.exited && s.settled
}

// ExitErr returns the failure reason attached on exit, nil for settled
// seats and for plain refunds.
func (s *Seat) ExitErr() error {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	return s.exitErr
}

// Payout returns the allocation claimable by the party after exit.
// Before exit it returns nil.
func (s *Seat) Payout() assets.Allocation {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	if !s.exited {
		return nil
	}
	return s.alloc.Clone()
}

func (s *Seat) name() string {
	if s.pool {
		return "pool:" + s.poolName
	}
	return s.id.String()
}
