package proposal

import (
	"fmt"
	"time"

	"github.com/tradewell/escrow-engine-go/pkg/assets"
)

// Builder helps construct well-formed proposals keyword by keyword.
type Builder struct {
	give assets.Allocation
	want assets.Allocation
	exit ExitRule
	err  error
}

// NewBuilder creates a proposal builder with an on-demand exit rule.
func NewBuilder() *Builder {
	return &Builder{
		give: assets.Allocation{},
		want: assets.Allocation{},
		exit: OnDemand(),
	}
}

// Give sets the amount offered under a keyword.
func (b *Builder) Give(keyword string, amt assets.Amount) *Builder {
	b.setKeyword(b.give, "give", keyword, amt)
	return b
}

// Want sets the amount requested under a keyword.
func (b *Builder) Want(keyword string, amt assets.Amount) *Builder {
	b.setKeyword(b.want, "want", keyword, amt)
	return b
}

// Exit sets the exit rule (default: on demand).
func (b *Builder) Exit(rule ExitRule) *Builder {
	b.exit = rule
	return b
}

// ExitAfter is shorthand for Exit(AfterDeadline(deadline)).
func (b *Builder) ExitAfter(deadline time.Time) *Builder {
	return b.Exit(AfterDeadline(deadline))
}

func (b *Builder) setKeyword(side assets.Allocation, name, keyword string, amt assets.Amount) {
	if b.err != nil {
		return
	}
	if keyword == "" {
		b.err = fmt.Errorf("%s keyword must not be empty", name)
		return
	}
	if _, dup := side[keyword]; dup {
		b.err = fmt.Errorf("duplicate %s keyword %s", name, keyword)
		return
	}
	if amt.Brand().IsZero() {
		b.err = fmt.Errorf("%s %s: amount has no brand", name, keyword)
		return
	}
	side[keyword] = amt
}

// Build returns the assembled proposal, or the first construction error.
func (b *Builder) Build() (Proposal, error) {
	if b.err != nil {
		return Proposal{}, b.err
	}
	return Proposal{Give: b.give.Clone(), Want: b.want.Clone(), Exit: b.exit}, nil
}
