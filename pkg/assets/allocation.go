package assets

import (
	"fmt"
	"sort"
	"strings"
)

// Allocation maps proposal keywords to amounts, e.g. {"Price": 5 IST,
// "Items": map{...}}. It is the unit of escrowed state per seat.
type Allocation map[string]Amount

// Clone returns an independent copy.
func (al Allocation) Clone() Allocation {
	out := make(Allocation, len(al))
	for kw, amt := range al {
		out[kw] = amt
	}
	return out
}

// Keywords returns the allocation's keywords in sorted order.
func (al Allocation) Keywords() []string {
	kws := make([]string, 0, len(al))
	for kw := range al {
		kws = append(kws, kw)
	}
	sort.Strings(kws)
	return kws
}

// Covers reports whether, keyword by keyword, al >= other.
// Keywords absent from al are treated as empty of the other side's brand.
func (al Allocation) Covers(other Allocation) (bool, error) {
	for kw, want := range other {
		have, ok := al[kw]
		if !ok {
			have = MakeEmpty(want.Brand())
		}
		ok, err := IsGTE(have, want)
		if err != nil {
			return false, fmt.Errorf("keyword %s: %w", kw, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// BrandTotals folds the allocation into per-brand amount sums, keeping
// bag contents exact. Used by the ledger's conservation check.
func (al Allocation) BrandTotals(into map[Brand]Amount) (map[Brand]Amount, error) {
	if into == nil {
		into = make(map[Brand]Amount)
	}
	for _, amt := range al {
		prev, ok := into[amt.Brand()]
		if !ok {
			prev = MakeEmpty(amt.Brand())
		}
		sum, err := Add(prev, amt)
		if err != nil {
			return nil, err
		}
		into[amt.Brand()] = sum
	}
	return into, nil
}

func (al Allocation) String() string {
	parts := make([]string, 0, len(al))
	for _, kw := range al.Keywords() {
		parts = append(parts, fmt.Sprintf("%s=%s", kw, al[kw]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
