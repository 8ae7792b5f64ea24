package auction

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
	"github.com/tradewell/escrow-engine-go/pkg/contract"
	"github.com/tradewell/escrow-engine-go/pkg/escrow"
	"github.com/tradewell/escrow-engine-go/pkg/proposal"
)

var ist = assets.NewBrand("IST", assets.Fungible)

func bidderAddr(i int) common.Address {
	return common.BytesToAddress([]byte(fmt.Sprintf("bidder-%02d", i)))
}

func newAuction(t *testing.T, minBid int64, maxBids int) *Contract {
	t.Helper()
	c, err := New(contract.NewInstance(zerolog.Nop()), Terms{
		MinBidPrice: assets.Make(ist, minBid),
		MaxBids:     maxBids,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

// failer lets placeBid serve both stdlib tests and rapid property runs.
type failer interface {
	Fatalf(format string, args ...any)
}

func placeBid(t failer, c *Contract, i int, price int64, bag assets.Bag) *escrow.Seat {
	p, err := proposal.NewBuilder().
		Give(KeywordPrice, assets.Make(ist, price)).
		Want(KeywordItems, assets.MakeBag(c.ItemBrand(), bag)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	inv := c.MakeBidInvitation(bidderAddr(i))
	seat, result, err := c.inst.Redeem(inv.Token(), p, assets.Allocation{KeywordPrice: assets.Make(ist, price)})
	if err != nil {
		t.Fatalf("bid %d failed: %v", i, err)
	}
	if result != "bid placed" {
		t.Fatalf("bid %d: unexpected result %q", i, result)
	}
	return seat
}

// Quota 3, bids [8, 7, 6]: the first bidder wins the item and pays 8;
// the other two are refunded in full.
func TestHighestBidWins(t *testing.T) {
	c := newAuction(t, 1, 3)
	bag := assets.BagOf("sword", 1)

	first := placeBid(t, c, 1, 8, bag)
	second := placeBid(t, c, 2, 7, bag)
	if first.HasExited() || second.HasExited() {
		t.Fatal("bids before quota must stay open")
	}
	third := placeBid(t, c, 3, 6, bag)

	if !first.Settled() {
		t.Fatal("highest bidder should have settled")
	}
	payout := first.Payout()
	if !payout[KeywordItems].Bag().Count("sword").Equal(decimal.NewFromInt(1)) {
		t.Errorf("winner should hold the item, payout %s", payout)
	}
	if !payout[KeywordPrice].Value().IsZero() {
		t.Errorf("winner's bid should be fully paid, payout %s", payout)
	}
	if got := c.Proceeds().CurrentAllocation()[KeywordPrice]; !got.Value().Equal(decimal.NewFromInt(8)) {
		t.Errorf("proceeds should hold 8, has %s", got)
	}

	for i, loser := range []*escrow.Seat{second, third} {
		if loser.Settled() || !loser.HasExited() {
			t.Fatalf("loser %d should be refunded and exited", i)
		}
		want := assets.Make(ist, []int64{7, 6}[i])
		eq, err := assets.IsEqual(loser.Payout()[KeywordPrice], want)
		if err != nil || !eq {
			t.Errorf("loser %d refund mismatch: %s", i, loser.Payout())
		}
	}
}

// Quota 3, bids [6, 7, 7]: the second bidder is the first to reach the
// maximum, so it beats the third bidder's equal bid.
func TestTieGoesToEarliestMaxBid(t *testing.T) {
	c := newAuction(t, 1, 3)
	bag := assets.BagOf("shield", 1)

	placeBid(t, c, 1, 6, bag)
	second := placeBid(t, c, 2, 7, bag)
	third := placeBid(t, c, 3, 7, bag)

	if !second.Settled() {
		t.Fatal("earliest max bid should win")
	}
	if third.Settled() {
		t.Fatal("later equal bid must not win")
	}
	eq, err := assets.IsEqual(third.Payout()[KeywordPrice], assets.Make(ist, 7))
	if err != nil || !eq {
		t.Errorf("tied loser should be fully refunded, payout %s", third.Payout())
	}
}

// Separate item keys run separate batches.
func TestBatchesKeyOnWantedItem(t *testing.T) {
	c := newAuction(t, 1, 2)

	placeBid(t, c, 1, 5, assets.BagOf("sword", 1))
	other := placeBid(t, c, 2, 9, assets.BagOf("shield", 1))
	if other.HasExited() {
		t.Fatal("bid for a different item must not close the sword batch")
	}
	if got := c.OpenBids(ItemKey(assets.MakeBag(c.ItemBrand(), assets.BagOf("sword", 1)))); got != 1 {
		t.Errorf("expected 1 open sword bid, got %d", got)
	}
}

// After settlement the register clears and the same item reopens.
func TestRegisterClearsAndReopens(t *testing.T) {
	c := newAuction(t, 1, 2)
	bag := assets.BagOf("sword", 1)
	key := ItemKey(assets.MakeBag(c.ItemBrand(), bag))

	placeBid(t, c, 1, 5, bag)
	placeBid(t, c, 2, 6, bag)
	if got := c.OpenBids(key); got != 0 {
		t.Fatalf("register should clear after settlement, has %d", got)
	}

	// New batch for the same item.
	reopened := placeBid(t, c, 3, 7, bag)
	if reopened.HasExited() {
		t.Fatal("first bid of the new batch should stay open")
	}
	winner := placeBid(t, c, 4, 8, bag)
	if !winner.Settled() {
		t.Fatal("second batch should settle on quota")
	}

	// Both batches paid into the same proceeds pool: 6 + 8.
	if got := c.Proceeds().CurrentAllocation()[KeywordPrice]; !got.Value().Equal(decimal.NewFromInt(14)) {
		t.Errorf("proceeds should hold 14, has %s", got)
	}
}

func TestBidBelowMinimumRejected(t *testing.T) {
	c := newAuction(t, 5, 3)

	p, err := proposal.NewBuilder().
		Give(KeywordPrice, assets.Make(ist, 4)).
		Want(KeywordItems, assets.MakeBag(c.ItemBrand(), assets.BagOf("sword", 1))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	inv := c.MakeBidInvitation(bidderAddr(1))
	_, _, err = c.inst.Redeem(inv.Token(), p, assets.Allocation{KeywordPrice: assets.Make(ist, 4)})
	if !errors.Is(err, proposal.ErrShapeMismatch) {
		t.Fatalf("expected shape rejection for low bid, got %v", err)
	}
	if got := c.OpenBids(ItemKey(assets.MakeBag(c.ItemBrand(), assets.BagOf("sword", 1)))); got != 0 {
		t.Errorf("rejected bid must not enter the register, got %d", got)
	}
}

func TestAbortItemRefundsOpenBids(t *testing.T) {
	c := newAuction(t, 1, 3)
	bag := assets.BagOf("sword", 1)
	key := ItemKey(assets.MakeBag(c.ItemBrand(), bag))

	first := placeBid(t, c, 1, 5, bag)
	second := placeBid(t, c, 2, 6, bag)

	if err := c.AbortItem(key); err != nil {
		t.Fatalf("AbortItem failed: %v", err)
	}
	for i, seat := range []*escrow.Seat{first, second} {
		if !seat.HasExited() || seat.Settled() {
			t.Fatalf("bid %d should be force-refunded", i)
		}
	}
	if got := c.OpenBids(key); got != 0 {
		t.Errorf("register should clear on abort, has %d", got)
	}

	if err := c.AbortItem(key); err == nil {
		t.Error("aborting an empty key should fail")
	}
}

func placeBidWithEscrow(t *testing.T, c *Contract, i int, give, escrowed int64, bag assets.Bag) *escrow.Seat {
	t.Helper()
	p, err := proposal.NewBuilder().
		Give(KeywordPrice, assets.Make(ist, give)).
		Want(KeywordItems, assets.MakeBag(c.ItemBrand(), bag)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	inv := c.MakeBidInvitation(bidderAddr(i))
	seat, _, err := c.inst.Redeem(inv.Token(), p, assets.Allocation{KeywordPrice: assets.Make(ist, escrowed)})
	if err != nil {
		t.Fatalf("bid %d failed: %v", i, err)
	}
	return seat
}

// Bids rank by the declared give, not the escrowed payment: escrowing
// extra buys no advantage.
func TestDeclaredBidOutranksFatterEscrow(t *testing.T) {
	c := newAuction(t, 1, 2)
	bag := assets.BagOf("sword", 1)

	honest := placeBidWithEscrow(t, c, 1, 8, 8, bag)
	padded := placeBidWithEscrow(t, c, 2, 5, 9, bag)

	if !honest.Settled() {
		t.Fatal("the higher declared bid should win")
	}
	if padded.Settled() {
		t.Fatal("a lower declared bid must not win on escrow size")
	}
	refund := padded.Payout()[KeywordPrice]
	if eq, err := assets.IsEqual(refund, assets.Make(ist, 9)); err != nil || !eq {
		t.Errorf("loser should get its full escrow back, got %s", refund)
	}
	proceeds := c.Proceeds().CurrentAllocation()[KeywordPrice]
	if eq, err := assets.IsEqual(proceeds, assets.Make(ist, 8)); err != nil || !eq {
		t.Errorf("proceeds should hold the winning bid of 8, got %s", proceeds)
	}
}

// The winner pays exactly its declared bid; escrow beyond the bid comes
// back as change.
func TestWinnerPaysDeclaredBidOnly(t *testing.T) {
	c := newAuction(t, 1, 2)
	bag := assets.BagOf("sword", 1)

	winner := placeBidWithEscrow(t, c, 1, 7, 10, bag)
	loser := placeBidWithEscrow(t, c, 2, 5, 5, bag)

	if !winner.Settled() || loser.Settled() {
		t.Fatal("declared 7 should beat declared 5")
	}
	change := winner.Payout()[KeywordPrice]
	if eq, err := assets.IsEqual(change, assets.Make(ist, 3)); err != nil || !eq {
		t.Errorf("winner should keep 3 in change, got %s", change)
	}
	proceeds := c.Proceeds().CurrentAllocation()[KeywordPrice]
	if eq, err := assets.IsEqual(proceeds, assets.Make(ist, 7)); err != nil || !eq {
		t.Errorf("proceeds should hold 7, got %s", proceeds)
	}
}

// A settlement that fails mid-flight leaves no freshly minted supply
// parked on an open seat and no allocation changes.
func TestFailedSettlementReclaimsMintedSeat(t *testing.T) {
	c := newAuction(t, 1, 3)
	bag := assets.BagOf("sword", 1)
	key := bag.String()

	first := placeBid(t, c, 1, 8, bag)
	second := placeBid(t, c, 2, 6, bag)

	// Knock out the front runner behind the contract's back, then force
	// the batch close against the now-exited winner.
	ledger := c.inst.Ledger()
	if err := ledger.Refund(first, nil); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	before := ledger.OpenSeats()

	err := c.settle(key)
	if !errors.Is(err, escrow.ErrSeatExited) {
		t.Fatalf("expected ErrSeatExited, got %v", err)
	}

	if got := ledger.OpenSeats(); got != before {
		t.Errorf("open seats changed %d -> %d; a failed settlement must clean up after itself", before, got)
	}
	if second.HasExited() {
		t.Error("the untouched bid must stay open")
	}
	if !c.Proceeds().CurrentAllocation()[KeywordPrice].IsEmpty() {
		t.Error("no proceeds may accrue from a failed settlement")
	}
}
