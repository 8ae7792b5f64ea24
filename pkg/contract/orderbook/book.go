// Package orderbook implements the standing-offer matching strategy. A
// sell-shaped offer escrows an asset and lists it in a registry keyed by
// the asset's identity; a buy-shaped offer matches against the standing
// entry for its wanted asset, settling both sides atomically when the
// mutual price/quantity conditions hold.
package orderbook

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/contract"
	"github.com/tradewell/escrow-engine-go/pkg/escrow"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

// Proposal keywords: sells give Asset and want Price, buys the reverse.
const (
	KeywordAsset = "Asset"
	KeywordPrice = "Price"
)

// Terms parameterize an order-book contract.
type Terms struct {
	// PriceBrand is the fungible brand the book denominates prices in.
	PriceBrand assets.Brand
}

// Validate checks the terms before a contract is started.
func (t Terms) Validate() error {
	if t.PriceBrand.IsZero() {
		return fmt.Errorf("price brand is required")
	}
	if t.PriceBrand.Kind() != assets.Fungible {
		return fmt.Errorf("price brand must be fungible, got %s", t.PriceBrand)
	}
	return nil
}

// Contract maintains a registry of standing sell offers, at most one per
// asset key. The registry is a field of the contract, owned by its
// instance; nothing mutates it outside admission, matching, and cancel.
type Contract struct {
	inst      *contract.Instance
	terms     Terms
	sellShape proposal.Shape
	buyShape  proposal.Shape

	standing map[string]*escrow.Seat
}

// New starts an order-book contract on the given instance.
func New(inst *contract.Instance, terms Terms) (*Contract, error) {
	if err := terms.Validate(); err != nil {
		return nil, fmt.Errorf("invalid terms: %w", err)
	}
	c := &Contract{
		inst:  inst,
		terms: terms,
		sellShape: proposal.Shape{
			Give: map[string]proposal.Constraint{KeywordAsset: proposal.Any()},
			Want: map[string]proposal.Constraint{KeywordPrice: proposal.AnyOfBrand(terms.PriceBrand)},
			Exit: proposal.AnyExit(),
		},
		buyShape: proposal.Shape{
			Give: map[string]proposal.Constraint{KeywordPrice: proposal.AnyOfBrand(terms.PriceBrand)},
			Want: map[string]proposal.Constraint{KeywordAsset: proposal.Any()},
			Exit: proposal.AnyExit(),
		},
		standing: make(map[string]*escrow.Seat),
	}
	return c, nil
}

// OfferKey derives the registry key from an asset amount's identity: the
// brand for fungible assets, the brand plus item labels for bags.
func OfferKey(asset assets.Amount) string {
	brand := asset.Brand()
	if brand.Kind() != assets.BagKind {
		return brand.String()
	}
	return brand.String() + "/" + strings.Join(asset.Bag().Labels(), "+")
}

// Instance returns the contract instance invitations are redeemed against.
func (c *Contract) Instance() *contract.Instance { return c.inst }

// SellShape returns the proposal shape sell invitations carry.
func (c *Contract) SellShape() proposal.Shape { return c.sellShape }

// BuyShape returns the proposal shape buy invitations carry.
func (c *Contract) BuyShape() proposal.Shape { return c.buyShape }

// Standing reports whether a standing offer is listed for the key.
func (c *Contract) Standing(key string) bool {
	var listed bool
	_ = c.inst.Serialize(func() error {
		_, listed = c.standing[key]
		return nil
	})
	return listed
}

// MakeSellInvitation issues an invitation to list an asset for sale.
func (c *Contract) MakeSellInvitation(holder common.Address) *contract.Invitation {
	return c.inst.MakeInvitation(c.handleSell, "list asset", c.sellShape, holder)
}

// MakeBuyInvitation issues an invitation to buy a listed asset.
func (c *Contract) MakeBuyInvitation(holder common.Address) *contract.Invitation {
	return c.inst.MakeInvitation(c.handleBuy, "buy asset", c.buyShape, holder)
}

func (c *Contract) handleSell(seller *escrow.Seat) (string, error) {
	p := seller.Proposal()
	if err := c.sellShape.Validate(p); err != nil {
		return "", err
	}

	key := OfferKey(p.Give[KeywordAsset])
	if _, occupied := c.standing[key]; occupied {
		// Never silently replace a standing offer; the seller must
		// cancel and relist.
		return "", fmt.Errorf("%w: %s", contract.ErrKeyOccupied, key)
	}
	c.standing[key] = seller

	c.inst.Logger().Debug().Str("key", key).Stringer("seller", seller.Owner()).Msg("offer listed")
	return "offer listed", nil
}

func (c *Contract) handleBuy(buyer *escrow.Seat) (string, error) {
	p := buyer.Proposal()
	if err := c.buyShape.Validate(p); err != nil {
		return "", err
	}

	key := OfferKey(p.Want[KeywordAsset])
	seller, ok := c.standing[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", contract.ErrNoCounterparty, key)
	}

	sellerProp := seller.Proposal()
	compatible, err := c.compatible(sellerProp, p)
	if err != nil {
		return "", err
	}
	if !compatible {
		// The standing offer stays open; only this buyer is refunded.
		return "", fmt.Errorf("%w: standing offer for %s not satisfiable", contract.ErrPriceTooLow, key)
	}

	ledger := c.inst.Ledger()
	err = ledger.AtomicRearrange([]escrow.Transfer{
		escrow.FromTo(seller, buyer, assets.Allocation{KeywordAsset: p.Want[KeywordAsset]}),
		escrow.FromTo(buyer, seller, assets.Allocation{KeywordPrice: sellerProp.Want[KeywordPrice]}),
	})
	if err != nil {
		return "", err
	}

	if err := ledger.Exit(seller); err != nil {
		return "", err
	}
	if err := ledger.Exit(buyer); err != nil {
		return "", err
	}
	delete(c.standing, key)

	c.inst.Logger().Info().Str("key", key).
		Stringer("seller", seller.Owner()).
		Stringer("buyer", buyer.Owner()).
		Msg("offers matched")
	return "trade complete", nil
}

// compatible checks the mutual condition on the declared proposals: the
// seller's give covers what the buyer wants, and the buyer's give covers
// what the seller wants. Escrowed excess beyond a give is the party's
// change, never part of the match.
func (c *Contract) compatible(sellerProp, buyerProp proposal.Proposal) (bool, error) {
	sellerGives := sellerProp.Give[KeywordAsset]
	buyerWants := buyerProp.Want[KeywordAsset]
	if sellerGives.Brand() != buyerWants.Brand() {
		return false, nil
	}
	assetOK, err := assets.IsGTE(sellerGives, buyerWants)
	if err != nil || !assetOK {
		return false, err
	}

	buyerGives := buyerProp.Give[KeywordPrice]
	sellerWants := sellerProp.Want[KeywordPrice]
	priceOK, err := assets.IsGTE(buyerGives, sellerWants)
	if err != nil || !priceOK {
		return false, err
	}
	return true, nil
}

// CancelSell delists a standing offer, refunding its escrowed asset. This
// is also the hook an external timer collaborator uses to expire listings.
func (c *Contract) CancelSell(key string) error {
	return c.inst.Serialize(func() error {
		seller, ok := c.standing[key]
		if !ok {
			return fmt.Errorf("%w: %s", contract.ErrNoCounterparty, key)
		}
		if err := c.inst.Ledger().Refund(seller, nil); err != nil {
			return err
		}
		delete(c.standing, key)
		return nil
	})
}
