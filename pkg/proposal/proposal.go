// Package proposal models declared trade intents and the declarative shapes
// used to admit them. A proposal names what a party gives, what it wants
// back, and how its seat may exit. Shapes run at the platform boundary and
// again inside every strategy, so a malformed proposal never reaches
// settlement logic.
package proposal

import (
	"errors"
	"fmt"
	"time"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
)

var ErrShapeMismatch = errors.New("proposal shape mismatch")

// ExitKind selects how a seat may leave a trade.
type ExitKind string

const (
	// ExitOnDemand lets the party withdraw any time before settlement.
	ExitOnDemand ExitKind = "onDemand"
	// ExitWaived forfeits the right to withdraw before settlement.
	ExitWaived ExitKind = "waived"
	// ExitAfterDeadline allows withdrawal only once the deadline passes.
	ExitAfterDeadline ExitKind = "afterDeadline"
)

// ExitRule is the exit clause of a proposal.
type ExitRule struct {
	Kind     ExitKind
	Deadline time.Time // only for ExitAfterDeadline
}

// OnDemand is the default exit rule.
func OnDemand() ExitRule { return ExitRule{Kind: ExitOnDemand} }

// Waived forfeits early exit.
func Waived() ExitRule { return ExitRule{Kind: ExitWaived} }

// AfterDeadline allows exit only after the given time.
func AfterDeadline(deadline time.Time) ExitRule {
	return ExitRule{Kind: ExitAfterDeadline, Deadline: deadline}
}

// Proposal is a declared trade intent: give/want keyword allocations plus
// an exit rule. Zero-value Exit means ExitOnDemand.
type Proposal struct {
	Give assets.Allocation
	Want assets.Allocation
	Exit ExitRule
}

// Clone returns a proposal whose allocations are independent copies.
func (p Proposal) Clone() Proposal {
	return Proposal{Give: p.Give.Clone(), Want: p.Want.Clone(), Exit: p.Exit}
}

func (p Proposal) String() string {
	return fmt.Sprintf("give %s want %s exit %s", p.Give, p.Want, p.Exit.Kind)
}

func (p Proposal) normalizedExit() ExitRule {
	if p.Exit.Kind == "" {
		return OnDemand()
	}
	return p.Exit
}
