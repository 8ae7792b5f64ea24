package escrowengine

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/tradewell/escrow-engine-go/pkg/contract/auction"
	"github.com/tradewell/escrow-engine-go/pkg/contract/orderbook"
	"github.com/tradewell/escrow-engine-go/pkg/contract/trade"
)

// Config holds shared engine configuration and the default terms new
// contract instances are started with.
type Config struct {
	Logger    zerolog.Logger
	Trade     trade.Terms
	Auction   auction.Terms
	OrderBook orderbook.Terms
}

// DefaultConfig returns a console logger at info level and zero-value
// terms; strategies with required terms must have them set via options
// or per-call overrides before use.
func DefaultConfig() Config {
	return Config{
		Logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.InfoLevel).
			With().Timestamp().Logger(),
	}
}
