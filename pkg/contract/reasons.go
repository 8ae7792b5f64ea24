package contract

import (
	"errors"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/escrow"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

// Strategy-level failure reasons. Together with the asset, proposal, and
// escrow sentinels these form the engine's whole error taxonomy; every
// failed proposal exits carrying one of them.
var (
	ErrPriceTooLow    = errors.New("offered price too low")
	ErrQuotaExceeded  = errors.New("per-trade quota exceeded")
	ErrKeyOccupied    = errors.New("standing offer already listed for key")
	ErrNoCounterparty = errors.New("no standing offer for key")
)

// Reason is the wire-friendly code attached to a session's exit.
type Reason string

const (
	ReasonBrandMismatch     Reason = "BRAND_MISMATCH"
	ReasonInsufficientFunds Reason = "INSUFFICIENT_BALANCE"
	ReasonShapeMismatch     Reason = "PROPOSAL_SHAPE_MISMATCH"
	ReasonUnderfunded       Reason = "UNDERFUNDED"
	ReasonEscrowShortfall   Reason = "ESCROW_SHORTFALL"
	ReasonPriceTooLow       Reason = "PRICE_TOO_LOW"
	ReasonQuotaExceeded     Reason = "QUOTA_EXCEEDED"
	ReasonKeyOccupied       Reason = "KEY_OCCUPIED"
	ReasonNoCounterparty    Reason = "NO_COUNTERPARTY"
	ReasonRefunded          Reason = "REFUNDED"
	ReasonNone              Reason = ""
)

var reasonOrder = []struct {
	err    error
	reason Reason
}{
	{ErrPriceTooLow, ReasonPriceTooLow},
	{ErrQuotaExceeded, ReasonQuotaExceeded},
	{ErrKeyOccupied, ReasonKeyOccupied},
	{ErrNoCounterparty, ReasonNoCounterparty},
	{proposal.ErrShapeMismatch, ReasonShapeMismatch},
	{escrow.ErrEscrowShortfall, ReasonEscrowShortfall},
	{escrow.ErrUnderfunded, ReasonUnderfunded},
	{assets.ErrBrandMismatch, ReasonBrandMismatch},
	{assets.ErrInsufficientBalance, ReasonInsufficientFunds},
}

// ReasonOf maps an error from the engine to its exit-reason code.
// Unrecognized errors map to ReasonRefunded, nil to ReasonNone.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	for _, entry := range reasonOrder {
		if errors.Is(err, entry.err) {
			return entry.reason
		}
	}
	return ReasonRefunded
}

// ReasonErr maps a reason code back to its sentinel error, so callers can
// match exits with errors.Is. Codes without a sentinel return nil.
func ReasonErr(reason Reason) error {
	for _, entry := range reasonOrder {
		if entry.reason == reason {
			return entry.err
		}
	}
	return nil
}

// ExitReason reports the reason code attached to a seat's exit:
// ReasonNone for settled seats and open seats, ReasonRefunded for plain
// refunds, and the matching taxonomy code otherwise.
func ExitReason(seat *escrow.Seat) Reason {
	if seat == nil || !seat.HasExited() || seat.Settled() {
		return ReasonNone
	}
	if err := seat.ExitErr(); err != nil {
		return ReasonOf(err)
	}
	return ReasonRefunded
}
