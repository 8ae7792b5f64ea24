package escrow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

var (
	ErrEscrowShortfall   = errors.New("escrow shortfall")
	ErrUnderfunded       = errors.New("underfunded transfer")
	ErrValueNotConserved = errors.New("transfer list not value-conserving")
	ErrSeatExited        = errors.New("seat already exited")
	ErrForeignSeat       = errors.New("seat belongs to another ledger")
)

// Ledger owns the seats of one contract instance. All mutation is
// serialized on its lock; no two settlement decisions run concurrently.
type Ledger struct {
	mu    sync.Mutex
	log   zerolog.Logger
	seats map[uuid.UUID]*Seat
}

// NewLedger creates an empty ledger. A zero logger disables logging.
func NewLedger(log zerolog.Logger) *Ledger {
	return &Ledger{log: log, seats: make(map[uuid.UUID]*Seat)}
}

// NewSeat opens a seat for an admitted proposal, collateralized by payment.
// It fails with ErrEscrowShortfall unless payment covers the proposal's
// give allocation keyword by keyword. The whole payment is escrowed; any
// excess over give stays claimable by the party.
func (l *Ledger) NewSeat(owner common.Address, p proposal.Proposal, payment assets.Allocation) (*Seat, error) {
	covered, err := payment.Covers(p.Give)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEscrowShortfall, err)
	}
	if !covered {
		return nil, fmt.Errorf("%w: payment %s does not cover give %s", ErrEscrowShortfall, payment, p.Give)
	}

	seat := &Seat{
		id:     uuid.New(),
		owner:  owner,
		prop:   p.Clone(),
		ledger: l,
		alloc:  payment.Clone(),
	}

	l.mu.Lock()
	l.seats[seat.id] = seat
	l.mu.Unlock()

	l.log.Debug().Str("seat", seat.name()).Stringer("escrowed", payment).Msg("seat opened")
	return seat, nil
}

// NewPool makes a contract-owned aggregate seat (e.g. an auction's
// proceeds seat). Pool seats start empty and never exit on their own.
func (l *Ledger) NewPool(name string) *Seat {
	seat := &Seat{
		id:       uuid.New(),
		pool:     true,
		poolName: name,
		ledger:   l,
		alloc:    assets.Allocation{},
	}
	l.mu.Lock()
	l.seats[seat.id] = seat
	l.mu.Unlock()
	return seat
}

// OpenSeats counts the seats that have not yet exited.
func (l *Ledger) OpenSeats() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, s := range l.seats {
		if !s.exited {
			n++
		}
	}
	return n
}

// Transfer is one leg of an atomic reallocation: FromAmounts leave From,
// ToAmounts arrive at To. A nil ToAmounts defaults to FromAmounts.
type Transfer struct {
	From        *Seat
	To          *Seat
	FromAmounts assets.Allocation
	ToAmounts   assets.Allocation
}

// FromTo builds the common leg where the debited and credited amounts are
// identical.
func FromTo(from, to *Seat, amounts assets.Allocation) Transfer {
	return Transfer{From: from, To: to, FromAmounts: amounts}
}

// Leg builds a transfer with distinct debit and credit allocations. The
// per-brand totals across the whole transfer list must still balance.
func Leg(from, to *Seat, fromAmounts, toAmounts assets.Allocation) Transfer {
	return Transfer{From: from, To: to, FromAmounts: fromAmounts, ToAmounts: toAmounts}
}

// AtomicRearrange applies every transfer leg or none. It fails with
// ErrUnderfunded if any leg would overdraw its source seat, ErrSeatExited
// if any endpoint already exited, and ErrValueNotConserved if the list
// would create or destroy value for any brand. On failure no allocation
// changes.
func (l *Ledger) AtomicRearrange(transfers []Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rearrangeLocked(transfers)
}

func (l *Ledger) rearrangeLocked(transfers []Transfer) error {
	staged := make(map[*Seat]assets.Allocation)
	stage := func(s *Seat) (assets.Allocation, error) {
		if s == nil {
			return nil, fmt.Errorf("transfer leg with nil seat")
		}
		if s.ledger != l {
			return nil, ErrForeignSeat
		}
		if s.exited {
			return nil, fmt.Errorf("%w: %s", ErrSeatExited, s.name())
		}
		if alloc, ok := staged[s]; ok {
			return alloc, nil
		}
		alloc := s.alloc.Clone()
		staged[s] = alloc
		return alloc, nil
	}

	debited := make(map[assets.Brand]assets.Amount)
	credited := make(map[assets.Brand]assets.Amount)

	for i, tr := range transfers {
		fromAmounts := tr.FromAmounts
		toAmounts := tr.ToAmounts
		if toAmounts == nil {
			toAmounts = fromAmounts
		}

		fromAlloc, err := stage(tr.From)
		if err != nil {
			return fmt.Errorf("leg %d: %w", i, err)
		}
		toAlloc, err := stage(tr.To)
		if err != nil {
			return fmt.Errorf("leg %d: %w", i, err)
		}

		for kw, amt := range fromAmounts {
			have, ok := fromAlloc[kw]
			if !ok {
				have = assets.MakeEmpty(amt.Brand())
			}
			left, err := assets.Subtract(have, amt)
			if err != nil {
				return fmt.Errorf("leg %d: %w: %s lacks %s %s: %v", i, ErrUnderfunded, tr.From.name(), kw, amt, err)
			}
			fromAlloc[kw] = left
		}
		for kw, amt := range toAmounts {
			have, ok := toAlloc[kw]
			if !ok {
				have = assets.MakeEmpty(amt.Brand())
			}
			sum, err := assets.Add(have, amt)
			if err != nil {
				return fmt.Errorf("leg %d: credit %s: %w", i, kw, err)
			}
			toAlloc[kw] = sum
		}

		if debited, err = fromAmounts.BrandTotals(debited); err != nil {
			return fmt.Errorf("leg %d: %w", i, err)
		}
		if credited, err = toAmounts.BrandTotals(credited); err != nil {
			return fmt.Errorf("leg %d: %w", i, err)
		}
	}

	if err := conserved(debited, credited); err != nil {
		return err
	}

	// Commit: every staged seat takes its new allocation at once.
	for seat, alloc := range staged {
		seat.alloc = alloc
	}

	l.log.Debug().Int("legs", len(transfers)).Msg("atomic rearrange applied")
	return nil
}

func conserved(debited, credited map[assets.Brand]assets.Amount) error {
	for brand, out := range debited {
		in, ok := credited[brand]
		if !ok {
			in = assets.MakeEmpty(brand)
		}
		eq, err := assets.IsEqual(out, in)
		if err != nil {
			return err
		}
		if !eq {
			return fmt.Errorf("%w: brand %s debits %s, credits %s", ErrValueNotConserved, brand, out, in)
		}
	}
	for brand, in := range credited {
		if _, ok := debited[brand]; !ok && !in.IsEmpty() {
			return fmt.Errorf("%w: brand %s credits %s out of nothing", ErrValueNotConserved, brand, in)
		}
	}
	return nil
}

// Exit settles a seat: it reaches its terminal state and whatever it still
// holds becomes the party's payout. Fails if the seat already exited.
func (l *Ledger) Exit(seat *Seat) error {
	return l.exit(seat, true, nil)
}

// Refund exits a seat without a settlement. reason may carry the failure
// that triggered the refund; nil means a plain refund (not an error, e.g.
// the losing bids of a closed auction batch). The seat's full remaining
// allocation stays claimable.
func (l *Ledger) Refund(seat *Seat, reason error) error {
	return l.exit(seat, false, reason)
}

func (l *Ledger) exit(seat *Seat, settled bool, reason error) error {
	if seat == nil {
		return fmt.Errorf("exit of nil seat")
	}
	if seat.ledger != l {
		return ErrForeignSeat
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if seat.exited {
		return fmt.Errorf("%w: %s", ErrSeatExited, seat.name())
	}
	seat.exited = true
	seat.settled = settled
	seat.exitErr = reason

	evt := l.log.Debug().Str("seat", seat.name()).Bool("settled", settled).Stringer("payout", seat.alloc)
	if reason != nil {
		evt = evt.AnErr("reason", reason)
	}
	evt.Msg("seat exited")
	return nil
}
