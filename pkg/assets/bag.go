package assets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Bag is a multiset of item labels: label -> multiplicity. It backs
// non-fungible (or rather: semi-fungible) amounts such as 3 potions and
// 1 map. Multiplicities are always positive in a normalized bag.
type Bag map[string]decimal.Decimal

// BagOf builds a single-label bag; chain With for more labels.
func BagOf(label string, count int64) Bag {
	return Bag{label: decimal.NewFromInt(count)}.normalized()
}

// With returns a copy of the bag with the label set to count.
func (b Bag) With(label string, count int64) Bag {
	out := b.Copy()
	if out == nil {
		out = Bag{}
	}
	out[label] = decimal.NewFromInt(count)
	return out.normalized()
}

// Copy returns an independent copy of the bag.
func (b Bag) Copy() Bag {
	if b == nil {
		return nil
	}
	out := make(Bag, len(b))
	for label, count := range b {
		out[label] = count
	}
	return out
}

// Count returns the multiplicity of a label, zero if absent.
func (b Bag) Count(label string) decimal.Decimal {
	if count, ok := b[label]; ok {
		return count
	}
	return decimal.Zero
}

// TotalCount sums all multiplicities, used for per-trade quantity caps.
func (b Bag) TotalCount() decimal.Decimal {
	total := decimal.Zero
	for _, count := range b {
		total = total.Add(count)
	}
	return total
}

// Labels returns the item labels in sorted order.
func (b Bag) Labels() []string {
	labels := make([]string, 0, len(b))
	for label := range b {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// String renders the bag in canonical sorted form, so equal bags always
// render identically. Auction bid records key on this rendering.
func (b Bag) String() string {
	parts := make([]string, 0, len(b))
	for _, label := range b.Labels() {
		parts = append(parts, fmt.Sprintf("%s:%s", label, b[label]))
	}
	return strings.Join(parts, ",")
}

// normalized drops zero-count entries.
func (b Bag) normalized() Bag {
	out := make(Bag, len(b))
	for label, count := range b {
		if !count.IsZero() {
			out[label] = count
		}
	}
	return out
}

func (b Bag) add(other Bag) Bag {
	out := b.Copy()
	if out == nil {
		out = Bag{}
	}
	for label, count := range other {
		out[label] = out.Count(label).Add(count)
	}
	return out.normalized()
}

func (b Bag) subtract(other Bag) (Bag, error) {
	out := b.Copy()
	if out == nil {
		out = Bag{}
	}
	for label, count := range other {
		left := out.Count(label).Sub(count)
		if left.IsNegative() {
			return nil, fmt.Errorf("%w: %s of %q, have %s", ErrInsufficientBalance, count, label, b.Count(label))
		}
		out[label] = left
	}
	return out.normalized(), nil
}

func (b Bag) isGTE(other Bag) bool {
	for label, count := range other {
		if b.Count(label).LessThan(count) {
			return false
		}
	}
	return true
}

func (b Bag) isEqual(other Bag) bool {
	return b.isGTE(other) && other.isGTE(b)
}
