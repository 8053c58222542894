package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// InstrumentSource fetches a contract specification from the venue.
type InstrumentSource interface {
	Instrument(ctx context.Context, instID string) (domain.Instrument, error)
}

// InstrumentBook resolves instrument specs, checking the in-process map,
// then the shared cache, then the venue. Specs are fetched lazily and kept
// for the life of the process.
type InstrumentBook struct {
	src    InstrumentSource
	cache  domain.InstrumentCache // optional
	logger *slog.Logger

	mu    sync.RWMutex
	specs map[string]domain.Instrument
}

// NewInstrumentBook creates a book over src. cache may be nil.
func NewInstrumentBook(src InstrumentSource, cache domain.InstrumentCache, logger *slog.Logger) *InstrumentBook {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstrumentBook{
		src:    src,
		cache:  cache,
		logger: logger.With(slog.String("component", "instruments")),
		specs:  make(map[string]domain.Instrument),
	}
}

// Get returns the spec for instID. Failures wrap
// domain.ErrInstrumentUnavailable and are not cached, so the next cycle
// retries the lookup.
func (b *InstrumentBook) Get(ctx context.Context, instID string) (domain.Instrument, error) {
	b.mu.RLock()
	inst, ok := b.specs[instID]
	b.mu.RUnlock()
	if ok {
		return inst, nil
	}

	if b.cache != nil {
		if inst, err := b.cache.Get(ctx, instID); err == nil {
			b.remember(inst)
			return inst, nil
		}
	}

	inst, err := b.src.Instrument(ctx, instID)
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("executor: instrument %s: %w: %w", instID, domain.ErrInstrumentUnavailable, err)
	}
	b.remember(inst)

	if b.cache != nil {
		if err := b.cache.Set(ctx, inst); err != nil {
			b.logger.WarnContext(ctx, "executor: instrument cache set failed",
				slog.String("inst_id", instID),
				slog.String("error", err.Error()),
			)
		}
	}
	return inst, nil
}

func (b *InstrumentBook) remember(inst domain.Instrument) {
	b.mu.Lock()
	b.specs[inst.InstID] = inst
	b.mu.Unlock()
}
