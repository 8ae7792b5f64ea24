package proposal

import (
	"fmt"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
)

// Constraint restricts a single proposal keyword.
type Constraint struct {
	kind   constraintKind
	amount assets.Amount
	brand  assets.Brand
}

type constraintKind string

const (
	exactAmount constraintKind = "exact"
	minAmount   constraintKind = "min"
	anyOfBrand  constraintKind = "anyOfBrand"
	bagOfBrand  constraintKind = "bagOfBrand"
	anyAmount   constraintKind = "any"
)

// Any accepts an amount of any brand. Used by multi-asset contracts whose
// keyword cannot pin a brand up front.
func Any() Constraint {
	return Constraint{kind: anyAmount}
}

// Exact requires the keyword's amount to equal a.
func Exact(a assets.Amount) Constraint {
	return Constraint{kind: exactAmount, amount: a, brand: a.Brand()}
}

// Min requires the keyword's amount to be >= a.
func Min(a assets.Amount) Constraint {
	return Constraint{kind: minAmount, amount: a, brand: a.Brand()}
}

// AnyOfBrand requires only that the keyword's amount use the given brand.
func AnyOfBrand(b assets.Brand) Constraint {
	return Constraint{kind: anyOfBrand, brand: b}
}

// BagOfBrand requires a bag-shaped amount of the given brand with any
// contents. This is the usual pattern for "want" constraints over
// non-fungible items.
func BagOfBrand(b assets.Brand) Constraint {
	return Constraint{kind: bagOfBrand, brand: b}
}

func (c Constraint) check(amt assets.Amount) error {
	if c.kind == anyAmount {
		if amt.Brand().IsZero() {
			return fmt.Errorf("amount has no brand")
		}
		return nil
	}
	if amt.Brand() != c.brand {
		return fmt.Errorf("brand %s, need %s", amt.Brand(), c.brand)
	}
	switch c.kind {
	case exactAmount:
		eq, err := assets.IsEqual(amt, c.amount)
		if err != nil {
			return err
		}
		if !eq {
			return fmt.Errorf("amount %s, need exactly %s", amt, c.amount)
		}
	case minAmount:
		ok, err := assets.IsGTE(amt, c.amount)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("amount %s below minimum %s", amt, c.amount)
		}
	case bagOfBrand:
		if amt.Brand().Kind() != assets.BagKind {
			return fmt.Errorf("amount %s is not bag-shaped", amt)
		}
	case anyOfBrand:
		// brand check above suffices
	}
	return nil
}

// ExitConstraint restricts a proposal's exit rule.
type ExitConstraint struct {
	any  bool
	kind ExitKind
}

// AnyExit accepts every exit rule. This is the typical choice.
func AnyExit() ExitConstraint { return ExitConstraint{any: true} }

// ExitOfKind accepts only exit rules of the given kind.
func ExitOfKind(kind ExitKind) ExitConstraint { return ExitConstraint{kind: kind} }

func (c ExitConstraint) check(rule ExitRule) error {
	if c.any {
		return nil
	}
	if rule.Kind != c.kind {
		return fmt.Errorf("exit kind %s, need %s", rule.Kind, c.kind)
	}
	return nil
}

// Shape declares, per keyword, what an admissible proposal must look like.
// The same shape is attached to invitations (so the platform can reject a
// submission before the engine runs) and re-checked by every strategy.
type Shape struct {
	Give map[string]Constraint
	Want map[string]Constraint
	Exit ExitConstraint
}

// Validate checks a proposal against the shape. It is purely structural:
// no escrow or settlement state is consulted. The error wraps
// ErrShapeMismatch and names the offending clause.
func (s Shape) Validate(p Proposal) error {
	if err := checkSide("give", p.Give, s.Give); err != nil {
		return err
	}
	if err := checkSide("want", p.Want, s.Want); err != nil {
		return err
	}
	if err := s.Exit.check(p.normalizedExit()); err != nil {
		return fmt.Errorf("%w: exit: %v", ErrShapeMismatch, err)
	}
	return nil
}

func checkSide(side string, alloc assets.Allocation, constraints map[string]Constraint) error {
	for kw, c := range constraints {
		amt, ok := alloc[kw]
		if !ok {
			return fmt.Errorf("%w: %s is missing keyword %s", ErrShapeMismatch, side, kw)
		}
		if err := c.check(amt); err != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrShapeMismatch, side, kw, err)
		}
	}
	for kw := range alloc {
		if _, ok := constraints[kw]; !ok {
			return fmt.Errorf("%w: %s has unexpected keyword %s", ErrShapeMismatch, side, kw)
		}
	}
	return nil
}
