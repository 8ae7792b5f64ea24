package contract

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/escrow"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

var (
	ErrInvitationUsed    = errors.New("invitation already redeemed")
	ErrUnknownInvitation = errors.New("unknown invitation")
)

// Stage is a party's position in the session lifecycle.
type Stage string

const (
	StageInvited  Stage = "invited"
	StageProposed Stage = "proposed"
	StageEscrowed Stage = "escrowed"
	StageOpen     Stage = "open"
	StageExited   Stage = "exited"
)

// Invitation is an opaque token redeemable exactly once into a seat. The
// attached shape lets the platform reject a non-matching submission before
// the engine is invoked at all; strategies re-validate it anyway.
type Invitation struct {
	token       uuid.UUID
	description string
	shape       proposal.Shape
	holder      common.Address
	handler     OfferHandler

	redeemed bool
	stage    Stage
	seat     *escrow.Seat
}

// Token returns the invitation's redeemable token.
func (inv *Invitation) Token() uuid.UUID { return inv.token }

// Description names the entry point the invitation is for.
func (inv *Invitation) Description() string { return inv.description }

// Shape returns the proposal shape the invitation admits.
func (inv *Invitation) Shape() proposal.Shape { return inv.shape }

// Holder returns the party address the invitation was issued to.
func (inv *Invitation) Holder() common.Address { return inv.holder }

// Seat returns the seat produced by redemption, nil before escrow.
func (inv *Invitation) Seat() *escrow.Seat { return inv.seat }

// Stage reports the lifecycle position, folding in the seat's exit state.
func (inv *Invitation) Stage() Stage {
	if inv.seat != nil && inv.seat.HasExited() {
		return StageExited
	}
	return inv.stage
}

// MakeInvitation issues an invitation for a strategy entry point.
func (in *Instance) MakeInvitation(handler OfferHandler, description string, shape proposal.Shape, holder common.Address) *Invitation {
	inv := &Invitation{
		token:       uuid.New(),
		description: description,
		shape:       shape,
		holder:      holder,
		handler:     handler,
		stage:       StageInvited,
	}

	in.mu.Lock()
	in.invitations[inv.token] = inv
	in.mu.Unlock()

	in.log.Debug().Stringer("token", inv.token).Str("description", description).Msg("invitation issued")
	return inv
}

// Redeem admits a proposal through an invitation: the shape is validated,
// the payment is escrowed into a new seat, and the strategy's handler
// decides what happens next. The invitation burns on first use whatever
// the outcome.
//
// A handler error refunds and exits the seat with that error as its exit
// reason; the ledger is never left partially settled because all movement
// inside handlers goes through AtomicRearrange.
func (in *Instance) Redeem(token uuid.UUID, p proposal.Proposal, payment assets.Allocation) (*escrow.Seat, string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	inv, ok := in.invitations[token]
	if !ok {
		return nil, "", ErrUnknownInvitation
	}
	if inv.redeemed {
		return nil, "", fmt.Errorf("%w: %s", ErrInvitationUsed, token)
	}
	inv.redeemed = true

	if err := inv.shape.Validate(p); err != nil {
		// Rejected before any escrow: nothing to refund.
		in.log.Debug().Stringer("token", token).Err(err).Msg("proposal rejected at admission")
		return nil, "", err
	}
	inv.stage = StageProposed

	seat, err := in.ledger.NewSeat(inv.holder, p, payment)
	if err != nil {
		return nil, "", err
	}
	inv.stage = StageEscrowed
	inv.seat = seat

	result, err := inv.handler(seat)
	if err != nil {
		// Failed proposals are refunded in full and exited with the
		// failure attached, unless the handler already exited the seat.
		if !seat.HasExited() {
			if refundErr := in.ledger.Refund(seat, err); refundErr != nil {
				return seat, "", errors.Join(err, refundErr)
			}
		}
		return seat, "", err
	}

	if !seat.HasExited() {
		inv.stage = StageOpen
	}
	return seat, result, nil
}
