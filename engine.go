// Package escrowengine assembles the escrow ledger, the invitation
// lifecycle, and the matching strategies behind a shared configuration.
// Each strategy constructor starts an isolated contract instance with
// its own ledger; instances never share escrowed assets.
package escrowengine

import (
	"github.com/rs/zerolog"

	"github.com/tradewell/escrow-engine-go/pkg/contract"
	"github.com/tradewell/escrow-engine-go/pkg/contract/auction"
	"github.com/tradewell/escrow-engine-go/pkg/contract/orderbook"
	"github.com/tradewell/escrow-engine-go/pkg/contract/trade"
)

// Engine creates contract instances from a shared configuration.
type Engine struct {
	Config Config
}

// Option overrides part of the engine configuration.
type Option func(*Engine)

// WithLogger replaces the default console logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.Config.Logger = log }
}

// WithTradeTerms sets the default terms for direct-trade instances.
func WithTradeTerms(terms trade.Terms) Option {
	return func(e *Engine) { e.Config.Trade = terms }
}

// WithAuctionTerms sets the default terms for auction instances.
func WithAuctionTerms(terms auction.Terms) Option {
	return func(e *Engine) { e.Config.Auction = terms }
}

// WithOrderBookTerms sets the default terms for order-book instances.
func WithOrderBookTerms(terms orderbook.Terms) Option {
	return func(e *Engine) { e.Config.OrderBook = terms }
}

// New creates an engine with optional overrides.
func New(opts ...Option) *Engine {
	e := &Engine{Config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) instance(component string) *contract.Instance {
	return contract.NewInstance(e.Config.Logger.With().Str("contract", component).Logger())
}

// NewDirectTrade starts a direct-trade instance with the configured terms.
func (e *Engine) NewDirectTrade() (*trade.Contract, error) {
	return trade.New(e.instance("trade"), e.Config.Trade)
}

// NewAuction starts a sealed-bid auction instance with the configured terms.
func (e *Engine) NewAuction() (*auction.Contract, error) {
	return auction.New(e.instance("auction"), e.Config.Auction)
}

// NewOrderBook starts an order-book instance with the configured terms.
func (e *Engine) NewOrderBook() (*orderbook.Contract, error) {
	return orderbook.New(e.instance("orderbook"), e.Config.OrderBook)
}
