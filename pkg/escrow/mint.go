package escrow

import (
	"errors"
	"fmt"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
)

var ErrMintBrand = errors.New("amount of foreign brand")

// Mint creates new supply of a single brand directly into seats. Total
// minted supply only grows; the engine has no burn operation.
type Mint struct {
	ledger *Ledger
	brand  assets.Brand
	minted assets.Amount
}

// NewMint creates a mint for the given brand on this ledger.
func (l *Ledger) NewMint(brand assets.Brand) *Mint {
	return &Mint{ledger: l, brand: brand, minted: assets.MakeEmpty(brand)}
}

// Brand returns the brand this mint issues.
func (m *Mint) Brand() assets.Brand { return m.brand }

// Minted returns the total supply issued so far.
func (m *Mint) Minted() assets.Amount {
	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	return m.minted
}

// MintInto credits freshly created supply to a seat's allocation. Every
// amount must use the mint's brand. Minting into an exited seat fails.
func (m *Mint) MintInto(seat *Seat, gains assets.Allocation) error {
	if seat == nil {
		return fmt.Errorf("mint into nil seat")
	}
	if seat.ledger != m.ledger {
		return ErrForeignSeat
	}

	m.ledger.mu.Lock()
	defer m.ledger.mu.Unlock()
	if seat.exited {
		return fmt.Errorf("%w: %s", ErrSeatExited, seat.name())
	}

	minted := m.minted
	staged := seat.alloc.Clone()
	for kw, amt := range gains {
		if amt.Brand() != m.brand {
			return fmt.Errorf("%w: %s is not %s", ErrMintBrand, amt.Brand(), m.brand)
		}
		have, ok := staged[kw]
		if !ok {
			have = assets.MakeEmpty(m.brand)
		}
		sum, err := assets.Add(have, amt)
		if err != nil {
			return err
		}
		staged[kw] = sum

		if minted, err = assets.Add(minted, amt); err != nil {
			return err
		}
	}

	seat.alloc = staged
	m.minted = minted
	return nil
}
