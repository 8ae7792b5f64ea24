// Package assets implements the amount algebra for escrowed trades: typed
// quantities scoped to a brand, either fungible scalars or non-fungible bags.
// Amounts of different brands never mix; every operation that combines two
// amounts fails with ErrBrandMismatch unless their brands are identical.
package assets

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrBrandMismatch       = errors.New("brand mismatch")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// AssetKind distinguishes fungible scalar amounts from non-fungible bags.
type AssetKind string

const (
	Fungible AssetKind = "fungible"
	BagKind  AssetKind = "bag"
)

// Brand is the type identity of an asset. Brands are compared by value;
// two brands with the same name and kind denote the same asset type.
type Brand struct {
	name string
	kind AssetKind
}

// NewBrand creates a brand for the given asset kind.
func NewBrand(name string, kind AssetKind) Brand {
	return Brand{name: name, kind: kind}
}

func (b Brand) Name() string    { return b.name }
func (b Brand) Kind() AssetKind { return b.kind }
func (b Brand) IsZero() bool    { return b == Brand{} }

func (b Brand) String() string {
	return fmt.Sprintf("%s[%s]", b.name, b.kind)
}

// Amount is a brand-scoped quantity. For fungible brands the quantity is a
// non-negative arbitrary-precision integer; for bag brands it is a multiset
// of item labels.
type Amount struct {
	brand Brand
	value decimal.Decimal
	bag   Bag
}

// New creates a fungible amount. The value must be a non-negative integer.
func New(brand Brand, value decimal.Decimal) (Amount, error) {
	if brand.Kind() != Fungible {
		return Amount{}, fmt.Errorf("%w: brand %s is not fungible", ErrInvalidAmount, brand)
	}
	if !isWholeNonNegative(value) {
		return Amount{}, fmt.Errorf("%w: %s is not a non-negative integer", ErrInvalidAmount, value)
	}
	return Amount{brand: brand, value: value}, nil
}

// NewBag creates a bag amount. Every multiplicity must be a non-negative
// integer; zero-count entries are dropped.
func NewBag(brand Brand, bag Bag) (Amount, error) {
	if brand.Kind() != BagKind {
		return Amount{}, fmt.Errorf("%w: brand %s is not bag-kinded", ErrInvalidAmount, brand)
	}
	for label, count := range bag {
		if !isWholeNonNegative(count) {
			return Amount{}, fmt.Errorf("%w: count %s for %q is not a non-negative integer", ErrInvalidAmount, count, label)
		}
	}
	return Amount{brand: brand, bag: bag.normalized()}, nil
}

// Make builds a fungible amount from an int64, panicking on misuse.
// Intended for terms and tests, mirroring decimal.RequireFromString.
func Make(brand Brand, value int64) Amount {
	a, err := New(brand, decimal.NewFromInt(value))
	if err != nil {
		panic(err)
	}
	return a
}

// MakeBag builds a bag amount, panicking on misuse.
func MakeBag(brand Brand, bag Bag) Amount {
	a, err := NewBag(brand, bag)
	if err != nil {
		panic(err)
	}
	return a
}

// MakeEmpty returns the empty amount of the given brand.
func MakeEmpty(brand Brand) Amount {
	if brand.Kind() == BagKind {
		return Amount{brand: brand, bag: Bag{}}
	}
	return Amount{brand: brand}
}

func (a Amount) Brand() Brand { return a.brand }

// Value returns the scalar quantity of a fungible amount.
// For bag amounts it returns zero; use Bag instead.
func (a Amount) Value() decimal.Decimal { return a.value }

// Bag returns a copy of the bag contents of a bag amount.
func (a Amount) Bag() Bag { return a.bag.Copy() }

// IsEmpty reports whether the amount carries no quantity.
func (a Amount) IsEmpty() bool {
	if a.brand.Kind() == BagKind {
		return len(a.bag) == 0
	}
	return a.value.IsZero()
}

func (a Amount) String() string {
	if a.brand.Kind() == BagKind {
		return fmt.Sprintf("%s{%s}", a.brand.Name(), a.bag)
	}
	return fmt.Sprintf("%s %s", a.value, a.brand.Name())
}

// Add returns the per-brand sum of two amounts.
func Add(a, b Amount) (Amount, error) {
	if err := sameBrand(a, b); err != nil {
		return Amount{}, err
	}
	if a.brand.Kind() == BagKind {
		return Amount{brand: a.brand, bag: a.bag.add(b.bag)}, nil
	}
	return Amount{brand: a.brand, value: a.value.Add(b.value)}, nil
}

// Subtract returns a minus b. It fails with ErrInsufficientBalance if any
// resulting quantity would go negative.
func Subtract(a, b Amount) (Amount, error) {
	if err := sameBrand(a, b); err != nil {
		return Amount{}, err
	}
	if a.brand.Kind() == BagKind {
		bag, err := a.bag.subtract(b.bag)
		if err != nil {
			return Amount{}, err
		}
		return Amount{brand: a.brand, bag: bag}, nil
	}
	diff := a.value.Sub(b.value)
	if diff.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrInsufficientBalance, a, b)
	}
	return Amount{brand: a.brand, value: diff}, nil
}

// IsGTE reports whether a covers b. For bags the comparison is per item
// label: a >= b iff every label in b has at least its multiplicity in a.
func IsGTE(a, b Amount) (bool, error) {
	if err := sameBrand(a, b); err != nil {
		return false, err
	}
	if a.brand.Kind() == BagKind {
		return a.bag.isGTE(b.bag), nil
	}
	return a.value.GreaterThanOrEqual(b.value), nil
}

// IsEqual reports whether two amounts carry exactly the same quantity.
func IsEqual(a, b Amount) (bool, error) {
	if err := sameBrand(a, b); err != nil {
		return false, err
	}
	if a.brand.Kind() == BagKind {
		return a.bag.isEqual(b.bag), nil
	}
	return a.value.Equal(b.value), nil
}

func sameBrand(a, b Amount) error {
	if a.brand != b.brand {
		return fmt.Errorf("%w: %s vs %s", ErrBrandMismatch, a.brand, b.brand)
	}
	return nil
}

func isWholeNonNegative(d decimal.Decimal) bool {
	return !d.IsNegative() && d.IsInteger()
}

type amountJSON struct {
	Brand string          `json:"brand"`
	Kind  AssetKind       `json:"kind"`
	Value *decimal.Decimal `json:"value,omitempty"`
	Bag   Bag             `json:"bag,omitempty"`
}

// MarshalJSON encodes fungible values as decimal strings so arbitrary
// precision survives the wire.
func (a Amount) MarshalJSON() ([]byte, error) {
	out := amountJSON{Brand: a.brand.Name(), Kind: a.brand.Kind()}
	if a.brand.Kind() == BagKind {
		out.Bag = a.bag.Copy()
	} else {
		v := a.value
		out.Value = &v
	}
	return json.Marshal(out)
}

func (a *Amount) UnmarshalJSON(raw []byte) error {
	var in amountJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	brand := NewBrand(in.Brand, in.Kind)
	if in.Kind == BagKind {
		amt, err := NewBag(brand, in.Bag)
		if err != nil {
			return err
		}
		*a = amt
		return nil
	}
	value := decimal.Zero
	if in.Value != nil {
		value = *in.Value
	}
	amt, err := New(brand, value)
	if err != nil {
		return err
	}
	*a = amt
	return nil
}
