// Package executor turns approved trade intents into venue-legal orders. Two
// engines share the sizing and pricing rules: LiveEngine trades on the venue,
// SimulatedEngine settles against the local ledger.
package executor

import (
	"context"
	"slices"
	"strings"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// MarketData is the public market surface both engines price from.
type MarketData interface {
	Ticker(ctx context.Context, instID string) (domain.Ticker, error)
	Instrument(ctx context.Context, instID string) (domain.Instrument, error)
}

// Venue is the signed trading surface used by the live engine. It is
// implemented by *okx.Client.
type Venue interface {
	MarketData
	SetLeverage(ctx context.Context, req domain.LeverageRequest) error
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error)
	Positions(ctx context.Context) ([]domain.Position, error)
	Equity(ctx context.Context, ccy string) (float64, error)
}

// Config holds the execution parameters shared by both engines.
type Config struct {
	QuoteCurrency string
	MarginMode    string // isolated or cross

	// Majors get SlippageMajor, every other symbol SlippageOther.
	Majors        []string
	SlippageMajor float64
	SlippageOther float64

	Sizing SizingConfig

	// FeeBps is charged on executed notional by the simulated engine.
	FeeBps        float64
	TriggerPxType string

	// PartialCloses lets a close carrying a notional smaller than a single
	// matched position reduce it. Off, every close takes the full size.
	PartialCloses bool
}

// DefaultConfig returns the execution defaults.
func DefaultConfig() Config {
	return Config{
		QuoteCurrency: "USDT",
		MarginMode:    "isolated",
		Majors:        []string{"BTC", "ETH"},
		SlippageMajor: 0.002,
		SlippageOther: 0.005,
		Sizing:        DefaultSizingConfig(),
		FeeBps:        5,
		TriggerPxType: domain.TriggerPxLast,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QuoteCurrency == "" {
		c.QuoteCurrency = d.QuoteCurrency
	}
	if c.MarginMode == "" {
		c.MarginMode = d.MarginMode
	}
	if c.Majors == nil {
		c.Majors = d.Majors
	}
	if c.SlippageMajor <= 0 {
		c.SlippageMajor = d.SlippageMajor
	}
	if c.SlippageOther <= 0 {
		c.SlippageOther = d.SlippageOther
	}
	if c.Sizing.RoundUpMinNotional <= 0 {
		c.Sizing.RoundUpMinNotional = d.Sizing.RoundUpMinNotional
	}
	if c.Sizing.RoundUpEquityPct <= 0 {
		c.Sizing.RoundUpEquityPct = d.Sizing.RoundUpEquityPct
	}
	if c.TriggerPxType == "" {
		c.TriggerPxType = d.TriggerPxType
	}
	return c
}

// InstID returns the swap instrument id traded for symbol.
func (c Config) InstID(symbol string) string {
	return domain.SwapInstID(symbol, c.QuoteCurrency)
}

// Slippage returns the price tolerance for symbol.
func (c Config) Slippage(symbol string) float64 {
	if slices.ContainsFunc(c.Majors, func(m string) bool { return strings.EqualFold(m, symbol) }) {
		return c.SlippageMajor
	}
	return c.SlippageOther
}

// Fee returns the simulated fee on notional.
func (c Config) Fee(notional float64) float64 {
	return notional * c.FeeBps / 10_000
}

func failed(err error) domain.ExecutionResult {
	return domain.ExecutionResult{Disposition: domain.DispositionFailed, Reason: err.Error()}
}

func nothingToClose() domain.ExecutionResult {
	return domain.ExecutionResult{Disposition: domain.DispositionNoop, Reason: domain.ErrNothingToClose.Error()}
}

// closeSize returns the contracts a close should take from the only matched
// position, or zero for the full size.
func (c Config) closeSize(intent domain.TradeIntent, matched []domain.Position, mark float64, inst domain.Instrument) float64 {
	if !c.PartialCloses || intent.NotionalUSD <= 0 || len(matched) != 1 {
		return 0
	}
	sz := SizeContracts(intent.NotionalUSD, mark, inst, 0, c.Sizing)
	if sz.Contracts > 0 && sz.Contracts < matched[0].Contracts {
		return sz.Contracts
	}
	return 0
}

func leverageOf(intent domain.TradeIntent) float64 {
	if intent.Leverage < 1 {
		return 1
	}
	return intent.Leverage
}
