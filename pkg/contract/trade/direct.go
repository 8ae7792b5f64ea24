// Package trade implements the direct-trade strategy: offers settle (or
// fail) immediately on admission against a fixed price, with freshly
// minted items handed to the buyer and the price paid into a proceeds
// pool.
package trade

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/contract"
	"github.com/tradewell/escrow-engine-go/pkg/escrow"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

// Proposal keywords used by buy offers.
const (
	KeywordPay   = "Pay"
	KeywordItems = "Items"
)

const defaultMaxItems = 3

// Terms parameterize a direct-trade contract.
type Terms struct {
	// Price is the fixed price of one trade, regardless of item count.
	Price assets.Amount
	// MaxItems caps the items per trade. Exceeding it rejects the
	// trade; there is no partial fulfillment. Zero selects the default
	// of 3; a zero cap is not expressible.
	MaxItems int64
	// ItemBrandName names the minted item brand (default "Item").
	ItemBrandName string
}

func (t Terms) withDefaults() Terms {
	if t.MaxItems == 0 {
		t.MaxItems = defaultMaxItems
	}
	if t.ItemBrandName == "" {
		t.ItemBrandName = "Item"
	}
	return t
}

// Validate checks the terms before a contract is started.
func (t Terms) Validate() error {
	if t.Price.Brand().IsZero() {
		return fmt.Errorf("price amount is required")
	}
	if t.Price.Brand().Kind() != assets.Fungible {
		return fmt.Errorf("price must be fungible, got %s", t.Price.Brand())
	}
	if t.MaxItems < 0 {
		return fmt.Errorf("max items must not be negative (zero selects the default of %d)", defaultMaxItems)
	}
	return nil
}

// Contract sells freshly minted items at a fixed price.
type Contract struct {
	inst      *contract.Instance
	terms     Terms
	itemBrand assets.Brand
	mint      *escrow.Mint
	proceeds  *escrow.Seat
	shape     proposal.Shape
}

// New starts a direct-trade contract on the given instance.
func New(inst *contract.Instance, terms Terms) (*Contract, error) {
	terms = terms.withDefaults()
	if err := terms.Validate(); err != nil {
		return nil, fmt.Errorf("invalid terms: %w", err)
	}

	itemBrand := assets.NewBrand(terms.ItemBrandName, assets.BagKind)
	c := &Contract{
		inst:      inst,
		terms:     terms,
		itemBrand: itemBrand,
		mint:      inst.Ledger().NewMint(itemBrand),
		proceeds:  inst.Ledger().NewPool("proceeds"),
		shape: proposal.Shape{
			Give: map[string]proposal.Constraint{
				KeywordPay: proposal.AnyOfBrand(terms.Price.Brand()),
			},
			Want: map[string]proposal.Constraint{
				KeywordItems: proposal.BagOfBrand(itemBrand),
			},
			Exit: proposal.AnyExit(),
		},
	}
	return c, nil
}

// ItemBrand returns the brand of the items this contract mints.
func (c *Contract) ItemBrand() assets.Brand { return c.itemBrand }

// Instance returns the contract instance invitations are redeemed against.
func (c *Contract) Instance() *contract.Instance { return c.inst }

// Proceeds returns the pool seat accumulating sale proceeds.
func (c *Contract) Proceeds() *escrow.Seat { return c.proceeds }

// Shape returns the proposal shape buy invitations carry.
func (c *Contract) Shape() proposal.Shape { return c.shape }

// MakeBuyInvitation issues an invitation to buy items at the fixed price.
func (c *Contract) MakeBuyInvitation(holder common.Address) *contract.Invitation {
	return c.inst.MakeInvitation(c.handleBuy, "buy items", c.shape, holder)
}

func (c *Contract) handleBuy(buyer *escrow.Seat) (string, error) {
	p := buyer.Proposal()
	if err := c.shape.Validate(p); err != nil {
		return "", err
	}

	pay := p.Give[KeywordPay]
	covered, err := assets.IsGTE(pay, c.terms.Price)
	if err != nil {
		return "", err
	}
	if !covered {
		return "", fmt.Errorf("%w: %s below price of %s", contract.ErrPriceTooLow, pay, c.terms.Price)
	}

	want := p.Want[KeywordItems]
	if want.Bag().TotalCount().GreaterThan(decimal.NewFromInt(c.terms.MaxItems)) {
		return "", fmt.Errorf("%w: max %d items allowed, wanted %s", contract.ErrQuotaExceeded, c.terms.MaxItems, want)
	}

	ledger := c.inst.Ledger()
	minted := ledger.NewPool("minted")
	if err := c.mint.MintInto(minted, assets.Allocation{KeywordItems: want}); err != nil {
		return "", err
	}

	err = ledger.AtomicRearrange([]escrow.Transfer{
		// price from buyer to proceeds
		escrow.FromTo(buyer, c.proceeds, assets.Allocation{KeywordPay: c.terms.Price}),
		// new items to buyer
		escrow.FromTo(minted, buyer, assets.Allocation{KeywordItems: want}),
	})
	if err != nil {
		// A failed settlement must not park minted supply on an open seat.
		if reclaimErr := ledger.Refund(minted, err); reclaimErr != nil {
			return "", errors.Join(err, reclaimErr)
		}
		return "", err
	}

	if err := ledger.Exit(minted); err != nil {
		return "", err
	}
	if err := ledger.Exit(buyer); err != nil {
		return "", err
	}

	c.inst.Logger().Info().Stringer("buyer", buyer.Owner()).Stringer("items", want).Msg("trade settled")
	return "trade complete", nil
}
