package orderbook

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"pgregory.net/rapid"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/contract"
	"github.com/tradewell/escrow-engine-go/pkg/escrow"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

// For any interleaving of sells and buys over a small key space, each key
// holds at most one standing offer, a sell against an occupied key never
// displaces it, and a buy either settles the standing offer or leaves it
// untouched.
func TestProperty_SingleOccupancy(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c, err := New(contract.NewInstance(zerolog.Nop()), Terms{PriceBrand: ist})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		labels := []string{"blackacre", "whiteacre", "greenacre"}
		listed := map[string]*escrow.Seat{}

		steps := rapid.IntRange(5, 25).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			label := rapid.SampledFrom(labels).Draw(t, "label")
			asset := assets.MakeBag(deeds, assets.BagOf(label, 1))
			key := OfferKey(asset)
			price := rapid.Int64Range(1, 10).Draw(t, "price")

			if rapid.Bool().Draw(t, "sell") {
				p, err := proposal.NewBuilder().
					Give(KeywordAsset, asset).
					Want(KeywordPrice, assets.Make(ist, price)).
					Build()
				if err != nil {
					t.Fatalf("Build failed: %v", err)
				}
				inv := c.MakeSellInvitation(seller)
				seat, _, err := c.inst.Redeem(inv.Token(), p, assets.Allocation{KeywordAsset: asset})
				if prior, occupied := listed[key]; occupied {
					if !errors.Is(err, contract.ErrKeyOccupied) {
						t.Fatalf("occupied key %s: expected ErrKeyOccupied, got %v", key, err)
					}
					if prior.HasExited() {
						t.Fatalf("standing offer for %s displaced by rejected sell", key)
					}
				} else {
					if err != nil {
						t.Fatalf("sell on free key %s failed: %v", key, err)
					}
					listed[key] = seat
				}
				continue
			}

			p, err := proposal.NewBuilder().
				Give(KeywordPrice, assets.Make(ist, price)).
				Want(KeywordAsset, asset).
				Build()
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			inv := c.MakeBuyInvitation(buyer)
			buySeat, _, err := c.inst.Redeem(inv.Token(), p, assets.Allocation{KeywordPrice: assets.Make(ist, price)})
			sellSeat, occupied := listed[key]
			switch {
			case !occupied:
				if !errors.Is(err, contract.ErrNoCounterparty) {
					t.Fatalf("empty key %s: expected ErrNoCounterparty, got %v", key, err)
				}
			case err == nil:
				if !sellSeat.Settled() || !buySeat.Settled() {
					t.Fatalf("matched offer for %s left a side unsettled", key)
				}
				delete(listed, key)
			case errors.Is(err, contract.ErrPriceTooLow):
				if sellSeat.HasExited() {
					t.Fatalf("standing offer for %s lost to an underpriced buy", key)
				}
				if !buySeat.HasExited() || buySeat.Settled() {
					t.Fatalf("underpriced buyer for %s not refunded", key)
				}
			default:
				t.Fatalf("buy on %s: %v", key, err)
			}
		}

		for key := range listed {
			if !c.Standing(key) {
				t.Fatalf("tracked offer for %s missing from registry", key)
			}
		}
	})
}
