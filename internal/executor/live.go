package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// LiveEngine trades on the venue, which is the source of truth for
// positions and equity.
type LiveEngine struct {
	venue  Venue
	book   *InstrumentBook
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	// netMode is set once the venue rejects a posSide qualifier, after which
	// requests are sent without one.
	netMode atomic.Bool
}

// NewLiveEngine creates a LiveEngine.
func NewLiveEngine(venue Venue, book *InstrumentBook, cfg Config, logger *slog.Logger) *LiveEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveEngine{
		venue:  venue,
		book:   book,
		cfg:    cfg.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "live_engine")),
	}
}

// Mode reports domain.ModeLive.
func (e *LiveEngine) Mode() domain.ExecutionMode { return domain.ModeLive }

// Snapshot reads equity and open positions from the venue concurrently.
func (e *LiveEngine) Snapshot(ctx context.Context) (domain.ExposureSnapshot, error) {
	var (
		equity    float64
		positions []domain.Position
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		eq, err := e.venue.Equity(gctx, e.cfg.QuoteCurrency)
		if err != nil {
			return fmt.Errorf("equity: %w", err)
		}
		equity = eq
		return nil
	})
	g.Go(func() error {
		ps, err := e.venue.Positions(gctx)
		if err != nil {
			return fmt.Errorf("positions: %w", err)
		}
		positions = ps
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.ExposureSnapshot{}, fmt.Errorf("live: snapshot: %w: %w", domain.ErrSnapshotUnavailable, err)
	}

	snap := domain.ExposureSnapshot{
		Equity:        equity,
		OpenPositions: len(positions),
		TakenAt:       e.now(),
	}
	for _, p := range positions {
		switch p.Side {
		case domain.SideLong:
			snap.LongNotional += p.EntryNotional()
		case domain.SideShort:
			snap.ShortNotional += p.EntryNotional()
		}
	}
	return snap, nil
}

// ResolveCloseSize returns the venue positions a close on symbol and side
// would reduce, and their total contract count. An empty side matches both.
func (e *LiveEngine) ResolveCloseSize(ctx context.Context, symbol string, side domain.PositionSide) (float64, []domain.Position, error) {
	positions, err := e.venue.Positions(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("live: positions: %w", err)
	}
	var (
		total   float64
		matched []domain.Position
	)
	for _, p := range positions {
		if p.Matches(symbol, side) && p.Contracts > 0 {
			total += p.Contracts
			matched = append(matched, p)
		}
	}
	return total, matched, nil
}

// Execute submits the orders for one approved intent.
func (e *LiveEngine) Execute(ctx context.Context, intent domain.TradeIntent) (domain.ExecutionResult, error) {
	switch {
	case intent.Action.IsOpen():
		return e.open(ctx, intent)
	case intent.Action.IsClose():
		return e.close(ctx, intent)
	}
	return domain.ExecutionResult{}, fmt.Errorf("live: action %q: %w", intent.Action, domain.ErrInvalidIntent)
}

func (e *LiveEngine) open(ctx context.Context, intent domain.TradeIntent) (domain.ExecutionResult, error) {
	side, _ := intent.Action.Side()
	instID := e.cfg.InstID(intent.Symbol)
	log := e.logger.With(slog.String("symbol", intent.Symbol), slog.String("side", string(side)))

	inst, err := e.book.Get(ctx, instID)
	if err != nil {
		return failed(err), err
	}

	t, err := e.venue.Ticker(ctx, instID)
	if err != nil {
		err = fmt.Errorf("live: ticker %s: %w", instID, err)
		return failed(err), err
	}

	// Equity only matters for the round-up; a failed read just disables it.
	equity, err := e.venue.Equity(ctx, e.cfg.QuoteCurrency)
	if err != nil {
		log.WarnContext(ctx, "live: equity unavailable, round-up disabled", slog.String("error", err.Error()))
		equity = 0
	}

	sz := SizeContracts(intent.NotionalUSD, t.Mark(), inst, equity, e.cfg.Sizing)
	if sz.Contracts <= 0 {
		return domain.ExecutionResult{Disposition: domain.DispositionSkipped, Reason: sz.Reason}, nil
	}

	orderSide := side.OpenOrderSide()
	px, err := BoundedLimitPrice(orderSide, t, e.cfg.Slippage(intent.Symbol), inst.TickSz)
	if err != nil {
		return failed(err), err
	}

	req := domain.OrderRequest{
		InstID:    instID,
		TdMode:    e.cfg.MarginMode,
		Side:      orderSide,
		Type:      domain.OrderTypeLimit,
		Price:     px,
		Contracts: sz.Contracts,
		ClientID:  domain.NewID(),
		TickSz:    inst.TickSz,
		LotSz:     inst.LotSz,
	}
	if sl, tp := protectiveLevels(intent, side, t.Mark(), inst.TickSz); sl > 0 || tp > 0 {
		req.Algo = &domain.AttachedAlgo{
			ClientID:      domain.NewID(),
			SLTriggerPx:   sl,
			TPTriggerPx:   tp,
			TriggerPxType: e.cfg.TriggerPxType,
		}
	}

	// Leverage changes only once the order is known to go out.
	if err := e.setLeverage(ctx, instID, leverageOf(intent), side); err != nil {
		err = fmt.Errorf("live: set leverage %s: %w", instID, err)
		return failed(err), err
	}
	// Read after setLeverage, which may have switched to net mode.
	req.PosSide = e.posSide(side)

	ack, err := e.place(ctx, req)
	if err != nil {
		err = fmt.Errorf("live: place order %s: %w", instID, err)
		return failed(err), err
	}

	log.InfoContext(ctx, "live: order placed",
		slog.String("ord_id", ack.OrderID),
		slog.String("cl_ord_id", ack.ClientID),
		slog.Float64("contracts", sz.Contracts),
		slog.Float64("px", px),
		slog.Bool("rounded_up", sz.RoundedUp),
	)

	return domain.ExecutionResult{
		Disposition: domain.DispositionExecuted,
		Contracts:   sz.Contracts,
		Price:       px,
		Orders:      []domain.OrderAck{ack},
	}, nil
}

func (e *LiveEngine) close(ctx context.Context, intent domain.TradeIntent) (domain.ExecutionResult, error) {
	side, _ := intent.Action.Side()
	instID := e.cfg.InstID(intent.Symbol)

	open, matched, err := e.ResolveCloseSize(ctx, intent.Symbol, side)
	if err != nil {
		return failed(err), err
	}
	if open <= 0 {
		return nothingToClose(), nil
	}

	inst, err := e.book.Get(ctx, instID)
	if err != nil {
		return failed(err), err
	}

	var partial float64
	if e.cfg.PartialCloses && intent.NotionalUSD > 0 && len(matched) == 1 {
		t, err := e.venue.Ticker(ctx, instID)
		if err != nil {
			err = fmt.Errorf("live: ticker %s: %w", instID, err)
			return failed(err), err
		}
		partial = e.cfg.closeSize(intent, matched, t.Mark(), inst)
	}

	res := domain.ExecutionResult{Disposition: domain.DispositionExecuted}
	for _, p := range matched {
		contracts := p.Contracts
		if partial > 0 {
			contracts = partial
		}

		req := domain.OrderRequest{
			InstID:     p.InstID,
			TdMode:     e.cfg.MarginMode,
			Side:       p.Side.CloseOrderSide(),
			Type:       domain.OrderTypeMarket,
			Contracts:  contracts,
			PosSide:    e.closePosSide(p),
			ReduceOnly: true,
			ClientID:   domain.NewID(),
			TickSz:     inst.TickSz,
			LotSz:      inst.LotSz,
		}
		ack, err := e.place(ctx, req)
		if err != nil {
			err = fmt.Errorf("live: close %s %s: %w", p.InstID, p.Side, err)
			if len(res.Orders) == 0 {
				return failed(err), err
			}
			res.Disposition = domain.DispositionFailed
			res.Reason = err.Error()
			return res, err
		}
		res.Orders = append(res.Orders, ack)
		res.Contracts += contracts

		e.logger.InfoContext(ctx, "live: close submitted",
			slog.String("symbol", p.Symbol),
			slog.String("side", string(p.Side)),
			slog.String("ord_id", ack.OrderID),
			slog.Float64("contracts", contracts),
		)
	}
	return res, nil
}

// setLeverage sets leverage with the side qualifier, and on a position-mode
// rejection retries exactly once without it.
func (e *LiveEngine) setLeverage(ctx context.Context, instID string, lev float64, side domain.PositionSide) error {
	req := domain.LeverageRequest{
		InstID:   instID,
		Leverage: lev,
		MgnMode:  e.cfg.MarginMode,
		PosSide:  e.posSide(side),
	}
	err := e.venue.SetLeverage(ctx, req)
	if err == nil || req.PosSide == "" || !errors.Is(err, domain.ErrPositionMode) {
		return err
	}

	e.switchToNetMode(ctx, "set_leverage", err)
	req.PosSide = ""
	return e.venue.SetLeverage(ctx, req)
}

// place submits req, and on a position-mode rejection retries exactly once
// without posSide.
func (e *LiveEngine) place(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	ack, err := e.venue.PlaceOrder(ctx, req)
	if err == nil || req.PosSide == "" || !errors.Is(err, domain.ErrPositionMode) {
		return ack, err
	}

	e.switchToNetMode(ctx, "place_order", err)
	req.PosSide = ""
	return e.venue.PlaceOrder(ctx, req)
}

func (e *LiveEngine) switchToNetMode(ctx context.Context, op string, cause error) {
	if e.netMode.CompareAndSwap(false, true) {
		e.logger.WarnContext(ctx, "live: venue rejected posSide, switching to net mode",
			slog.String("op", op),
			slog.String("error", cause.Error()),
		)
	}
}

func (e *LiveEngine) posSide(side domain.PositionSide) string {
	if e.netMode.Load() {
		return ""
	}
	return string(side)
}

// closePosSide echoes the venue's own qualifier for an existing position.
func (e *LiveEngine) closePosSide(p domain.Position) string {
	if e.netMode.Load() || p.PosSide == "" || p.PosSide == "net" {
		return ""
	}
	return p.PosSide
}
