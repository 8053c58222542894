package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/service"
)

// SimulatedEngine settles intents against the local ledger at the current
// top of book. Opens fill at the ask (long) or bid (short); closes fill on
// the opposite side. Fees are FeeBps of executed notional on each leg.
type SimulatedEngine struct {
	market MarketData
	book   *InstrumentBook
	ledger *service.LedgerService
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewSimulatedEngine creates a SimulatedEngine. market only needs the public
// endpoints, so no credentials are required.
func NewSimulatedEngine(market MarketData, book *InstrumentBook, ledger *service.LedgerService, cfg Config, logger *slog.Logger) *SimulatedEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulatedEngine{
		market: market,
		book:   book,
		ledger: ledger,
		cfg:    cfg.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "simulated_engine")),
	}
}

// Mode reports domain.ModeSimulated.
func (e *SimulatedEngine) Mode() domain.ExecutionMode { return domain.ModeSimulated }

// Snapshot derives exposure from the persisted ledger.
func (e *SimulatedEngine) Snapshot(ctx context.Context) (domain.ExposureSnapshot, error) {
	l, err := e.ledger.Current(ctx)
	if err != nil {
		return domain.ExposureSnapshot{}, fmt.Errorf("simulated: snapshot: %w: %w", domain.ErrSnapshotUnavailable, err)
	}
	long, short, open := l.Exposure()
	return domain.ExposureSnapshot{
		Equity:        l.TotalEquity,
		LongNotional:  long,
		ShortNotional: short,
		OpenPositions: open,
		TakenAt:       e.now(),
	}, nil
}

// ResolveCloseSize returns the ledger positions a close on symbol and side
// would settle, and their total contract count. An empty side matches both.
func (e *SimulatedEngine) ResolveCloseSize(ctx context.Context, symbol string, side domain.PositionSide) (float64, []domain.Position, error) {
	l, err := e.ledger.Current(ctx)
	if err != nil {
		return 0, nil, err
	}
	var (
		total   float64
		matched []domain.Position
	)
	for _, i := range l.Find(symbol, side) {
		total += l.Positions[i].Contracts
		matched = append(matched, l.Positions[i])
	}
	return total, matched, nil
}

// Execute settles one approved intent.
func (e *SimulatedEngine) Execute(ctx context.Context, intent domain.TradeIntent) (domain.ExecutionResult, error) {
	switch {
	case intent.Action.IsOpen():
		return e.open(ctx, intent)
	case intent.Action.IsClose():
		return e.close(ctx, intent)
	}
	return domain.ExecutionResult{}, fmt.Errorf("simulated: action %q: %w", intent.Action, domain.ErrInvalidIntent)
}

func (e *SimulatedEngine) open(ctx context.Context, intent domain.TradeIntent) (domain.ExecutionResult, error) {
	side, _ := intent.Action.Side()
	instID := e.cfg.InstID(intent.Symbol)

	inst, err := e.book.Get(ctx, instID)
	if err != nil {
		return failed(err), err
	}
	t, err := e.market.Ticker(ctx, instID)
	if err != nil {
		err = fmt.Errorf("simulated: ticker %s: %w", instID, err)
		return failed(err), err
	}
	cur, err := e.ledger.Current(ctx)
	if err != nil {
		return failed(err), err
	}

	sz := SizeContracts(intent.NotionalUSD, t.Mark(), inst, cur.TotalEquity, e.cfg.Sizing)
	if sz.Contracts <= 0 {
		return domain.ExecutionResult{Disposition: domain.DispositionSkipped, Reason: sz.Reason}, nil
	}

	orderSide := side.OpenOrderSide()
	limit, err := BoundedLimitPrice(orderSide, t, e.cfg.Slippage(intent.Symbol), inst.TickSz)
	if err != nil {
		return failed(err), err
	}
	fill := touchPrice(orderSide, t)

	lev := leverageOf(intent)
	notional := sz.Contracts * inst.CtVal * fill
	fee := e.cfg.Fee(notional)
	sl, tp := protectiveLevels(intent, side, fill, inst.TickSz)

	pos := domain.Position{
		Symbol:     intent.Symbol,
		InstID:     instID,
		Side:       side,
		PosSide:    string(side),
		Contracts:  sz.Contracts,
		CtVal:      inst.CtVal,
		EntryPrice: fill,
		Leverage:   lev,
		Margin:     notional / lev,
		Notional:   notional,
		StopLoss:   sl,
		TakeProfit: tp,
		OpenedAt:   e.now(),
	}

	if _, _, err := e.ledger.Apply(ctx, "open", func(l *domain.Ledger) ([]domain.TradeRecord, error) {
		return nil, l.Open(pos, fee)
	}); err != nil {
		return failed(err), err
	}
	pos.OpenFee = fee

	e.logger.InfoContext(ctx, "simulated: position opened",
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(side)),
		slog.Float64("contracts", pos.Contracts),
		slog.Float64("entry", fill),
		slog.Float64("limit", limit),
		slog.Float64("fee", fee),
		slog.Bool("rounded_up", sz.RoundedUp),
	)

	return domain.ExecutionResult{
		Disposition: domain.DispositionExecuted,
		Contracts:   pos.Contracts,
		Price:       fill,
		Opened:      &pos,
	}, nil
}

func (e *SimulatedEngine) close(ctx context.Context, intent domain.TradeIntent) (domain.ExecutionResult, error) {
	side, _ := intent.Action.Side()
	instID := e.cfg.InstID(intent.Symbol)

	open, matched, err := e.ResolveCloseSize(ctx, intent.Symbol, side)
	if err != nil {
		return failed(err), err
	}
	if open <= 0 {
		return nothingToClose(), nil
	}

	t, err := e.market.Ticker(ctx, instID)
	if err != nil {
		err = fmt.Errorf("simulated: ticker %s: %w", instID, err)
		return failed(err), err
	}

	var partial float64
	if e.cfg.PartialCloses {
		inst, err := e.book.Get(ctx, instID)
		if err != nil {
			return failed(err), err
		}
		partial = e.cfg.closeSize(intent, matched, t.Mark(), inst)
	}

	_, trades, err := e.ledger.Apply(ctx, "close", func(l *domain.Ledger) ([]domain.TradeRecord, error) {
		idx := l.Find(intent.Symbol, side)
		if len(idx) == 0 {
			return nil, domain.ErrNothingToClose
		}
		var recs []domain.TradeRecord
		for i := len(idx) - 1; i >= 0; i-- {
			pos := l.Positions[idx[i]]
			exit := touchPrice(pos.Side.CloseOrderSide(), t)
			contracts := pos.Contracts
			if partial > 0 {
				contracts = partial
			}
			fee := e.cfg.Fee(contracts * pos.CtVal * exit)
			rec, err := l.Close(idx[i], contracts, exit, fee, e.now(), domain.NewID())
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		return recs, nil
	})
	if errors.Is(err, domain.ErrNothingToClose) {
		return nothingToClose(), nil
	}
	// The ledger settled even if the history append did not; the trades
	// stay in the result and the reason carries the loss.
	var unrecorded string
	if errors.Is(err, domain.ErrHistoryUnrecorded) {
		unrecorded, err = err.Error(), nil
	}
	if err != nil {
		return failed(err), err
	}

	var contracts float64
	for _, r := range trades {
		contracts += r.Contracts
	}
	res := domain.ExecutionResult{
		Disposition: domain.DispositionExecuted,
		Reason:      unrecorded,
		Contracts:   contracts,
		Trades:      trades,
	}
	if len(trades) > 0 {
		res.Price = trades[0].ExitPrice
	}
	return res, nil
}
