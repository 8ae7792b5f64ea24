// Package auction implements the sealed-bid auction strategy. Bids for an
// item accumulate until a configured quota closes the batch; the highest
// bid wins the item and pays into the proceeds pool, every other bidder in
// the batch is refunded in full, and the item reopens for new bids.
package auction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/contract"
	"github.com/tradewell/escrow-engine-go/pkg/escrow"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

// Proposal keywords used by bids.
const (
	KeywordPrice = "Price"
	KeywordItems = "Items"
)

const defaultMaxBids = 3

// Terms parameterize an auction contract.
type Terms struct {
	// MinBidPrice is the lowest admissible bid.
	MinBidPrice assets.Amount
	// MaxBids is the batch quota per item: the auction for an item
	// settles when this many bids have been collected. Zero selects
	// the default of 3.
	MaxBids int
	// ItemBrandName names the minted item brand (default "Item").
	ItemBrandName string
}

func (t Terms) withDefaults() Terms {
	if t.MaxBids == 0 {
		t.MaxBids = defaultMaxBids
	}
	if t.ItemBrandName == "" {
		t.ItemBrandName = "Item"
	}
	return t
}

// Validate checks the terms before a contract is started.
func (t Terms) Validate() error {
	if t.MinBidPrice.Brand().IsZero() {
		return fmt.Errorf("min bid price is required")
	}
	if t.MinBidPrice.Brand().Kind() != assets.Fungible {
		return fmt.Errorf("min bid price must be fungible, got %s", t.MinBidPrice.Brand())
	}
	if t.MaxBids < 0 {
		return fmt.Errorf("max bids must not be negative (zero selects the default of %d)", defaultMaxBids)
	}
	return nil
}

// Contract auctions freshly minted items, one sealed-bid batch at a time.
// The bid register is owned by the contract instance; bids only ever
// append during the open phase and the whole batch clears at settlement.
type Contract struct {
	inst      *contract.Instance
	terms     Terms
	itemBrand assets.Brand
	mint      *escrow.Mint
	proceeds  *escrow.Seat
	shape     proposal.Shape

	// bids keys on the canonical rendering of the wanted item bag, in
	// submission order. Delivery order decides ties, so the slices are
	// never reordered.
	bids map[string][]*escrow.Seat
}

// New starts an auction contract on the given instance.
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
				KeywordPrice: proposal.Min(terms.MinBidPrice),
			},
			Want: map[string]proposal.Constraint{
				KeywordItems: proposal.BagOfBrand(itemBrand),
			},
			Exit: proposal.AnyExit(),
		},
		bids: make(map[string][]*escrow.Seat),
	}
	return c, nil
}

// ItemBrand returns the brand of the items this contract mints.
func (c *Contract) ItemBrand() assets.Brand { return c.itemBrand }

// Instance returns the contract instance invitations are redeemed against.
func (c *Contract) Instance() *contract.Instance { return c.inst }

// Proceeds returns the pool seat accumulating winning bids.
func (c *Contract) Proceeds() *escrow.Seat { return c.proceeds }

// Shape returns the proposal shape bid invitations carry.
func (c *Contract) Shape() proposal.Shape { return c.shape }

// OpenBids returns how many bids are pending for an item key.
func (c *Contract) OpenBids(key string) int {
	var n int
	_ = c.inst.Serialize(func() error {
		n = len(c.bids[key])
		return nil
	})
	return n
}

// ItemKey derives the bid-register key for a wanted item amount.
func ItemKey(want assets.Amount) string {
	return want.Bag().String()
}

// MakeBidInvitation issues an invitation to bid on items.
func (c *Contract) MakeBidInvitation(holder common.Address) *contract.Invitation {
	return c.inst.MakeInvitation(c.handleBid, "bid on items", c.shape, holder)
}

func (c *Contract) handleBid(bidder *escrow.Seat) (string, error) {
	p := bidder.Proposal()
	if err := c.shape.Validate(p); err != nil {
		return "", err
	}

	key := ItemKey(p.Want[KeywordItems])
	c.bids[key] = append(c.bids[key], bidder)
	c.inst.Logger().Debug().Str("item", key).Int("bids", len(c.bids[key])).Msg("bid placed")

	if len(c.bids[key]) < c.terms.MaxBids {
		// Quota not reached: the bid stays open awaiting the batch close.
		return "bid placed", nil
	}
	if err := c.settle(key); err != nil {
		return "", err
	}
	return "bid placed", nil
}

// settle closes the batch for one item key: award the item to the highest
// bid, collect its price, refund everyone else, clear the register.
func (c *Contract) settle(key string) error {
	batch := c.bids[key]

	// Highest bid wins; on ties the earliest submission keeps the win,
	// so later bids must beat the front runner strictly.
	winner := batch[0]
	for _, bid := range batch[1:] {
		better, err := strictlyGreater(bidPrice(bid), bidPrice(winner))
		if err != nil {
			return err
		}
		if better {
			winner = bid
		}
	}

	want := winner.Proposal().Want[KeywordItems]
	price := bidPrice(winner)

	ledger := c.inst.Ledger()
	minted := ledger.NewPool("minted")
	if err := c.mint.MintInto(minted, assets.Allocation{KeywordItems: want}); err != nil {
		return err
	}

	err := ledger.AtomicRearrange([]escrow.Transfer{
		escrow.FromTo(minted, winner, assets.Allocation{KeywordItems: want}),
		escrow.FromTo(winner, c.proceeds, assets.Allocation{KeywordPrice: price}),
	})
	if err != nil {
		// A failed settlement must not park minted supply on an open seat.
		if reclaimErr := ledger.Refund(minted, err); reclaimErr != nil {
			return errors.Join(err, reclaimErr)
		}
		return err
	}

	if err := ledger.Exit(minted); err != nil {
		return err
	}
	if err := ledger.Exit(winner); err != nil {
		return err
	}
	for _, bid := range batch {
		if bid.HasExited() {
			continue
		}
		if err := ledger.Refund(bid, nil); err != nil {
			return err
		}
	}

	// Clear the register so the item can reopen.
	delete(c.bids, key)

	c.inst.Logger().Info().
		Str("item", key).
		Stringer("winner", winner.Owner()).
		Stringer("price", price).
		Msg("auction settled")
	return nil
}

// AbortItem force-refunds and exits every open bid for an item key. It is
// the hook for an external timer collaborator imposing expiry; the engine
// itself never times out.
func (c *Contract) AbortItem(key string) error {
	return c.inst.Serialize(func() error {
		batch, ok := c.bids[key]
		if !ok {
			return fmt.Errorf("no open bids for item %q", key)
		}
		ledger := c.inst.Ledger()
		for _, bid := range batch {
			if bid.HasExited() {
				continue
			}
			if err := ledger.Refund(bid, nil); err != nil {
				return err
			}
		}
		delete(c.bids, key)
		return nil
	})
}

// bidPrice is the declared bid, not the escrowed payment: a bidder who
// escrows more than its give pays only the give and gets the rest back
// as change.
func bidPrice(bid *escrow.Seat) assets.Amount {
	return bid.Proposal().Give[KeywordPrice]
}

func strictlyGreater(a, b assets.Amount) (bool, error) {
	gte, err := assets.IsGTE(a, b)
	if err != nil || !gte {
		return false, err
	}
	lte, err := assets.IsGTE(b, a)
	if err != nil {
		return false, err
	}
	return !lte, nil
}
