package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/naming"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"github.com/rxtech-lab/argo-equity/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the fetch concurrency used when none is configured.
const DefaultWorkers = 4

// Loader prepares the simulation universe. The first source supplies the bars; every
// source constrains which symbols are tradable.
type Loader struct {
	sources []DataSource
	naming  naming.MarketNamingStrategy
	workers int
	timeout time.Duration
	logger  *logger.Logger
}

// NewLoader creates a loader over the given sources. A non-positive timeout disables the
// per-fetch deadline.
func NewLoader(strategy naming.MarketNamingStrategy, workers int, timeout time.Duration, logger *logger.Logger, sources ...DataSource) *Loader {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	if strategy == nil {
		strategy = naming.USNaming{}
	}

	return &Loader{
		sources: sources,
		naming:  strategy,
		workers: workers,
		timeout: timeout,
		logger:  logger,
	}
}

// Load intersects the symbols of every source and reads each series in parallel.
// Series that fail or time out are dropped with a warning. The result does not depend on
// the order in which fetches complete.
func (l *Loader) Load(ctx context.Context, start optional.Option[time.Time], end optional.Option[time.Time]) (types.Universe, error) {
	if len(l.sources) == 0 {
		return types.Universe{}, errors.New(errors.ErrCodeBacktestNoDatasource, "no data source configured")
	}

	var warnings []string

	symbols, rawSymbols, err := l.commonSymbols(ctx, &warnings)
	if err != nil {
		return types.Universe{}, err
	}

	if len(symbols) == 0 {
		return types.Universe{}, errors.New(errors.ErrCodeEmptyUniverse, "no symbol is present in every data source")
	}

	var (
		mu      sync.Mutex
		fetched = make(map[string][]types.Bar, len(symbols))
	)

	drop := func(message string) {
		mu.Lock()
		defer mu.Unlock()

		warnings = append(warnings, message)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for _, symbol := range symbols {
		raw := rawSymbols[symbol]

		g.Go(func() error {
			bars, err := l.fetch(gctx, raw, start, end)
			if err != nil {
				// a cancelled run aborts; a single slow or broken series does not
				if ctx.Err() != nil {
					return ctx.Err()
				}

				drop(fmt.Sprintf("dropped %s: %v", symbol, err))
				l.logger.Warn("Dropped series", zap.String("symbol", symbol), zap.Error(err))

				return nil
			}

			if len(bars) == 0 {
				drop(fmt.Sprintf("dropped %s: no bars in range", symbol))

				return nil
			}

			for i := range bars {
				bars[i].Symbol = symbol
			}

			mu.Lock()
			fetched[symbol] = bars
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return types.Universe{}, fmt.Errorf("failed to load universe: %w", err)
	}

	series := make([]types.InstrumentSeries, 0, len(fetched))
	for _, symbol := range symbols {
		if bars, ok := fetched[symbol]; ok {
			series = append(series, types.NewInstrumentSeries(symbol, bars))
		}
	}

	if len(series) == 0 {
		return types.Universe{}, errors.Newf(errors.ErrCodeEmptyUniverse, "every series was dropped (%d warnings)", len(warnings))
	}

	universe := types.NewUniverse(series)

	sort.Strings(warnings)
	universe.Warnings = warnings

	l.logger.Info("Universe loaded",
		zap.Int("symbols", len(universe.Symbols)),
		zap.Int("days", len(universe.Calendar)),
		zap.Int("warnings", len(warnings)),
	)

	return universe, nil
}

func (l *Loader) fetch(ctx context.Context, raw string, start optional.Option[time.Time], end optional.Option[time.Time]) ([]types.Bar, error) {
	if l.timeout <= 0 {
		return l.sources[0].ReadSeries(ctx, raw, start, end)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	bars, err := l.sources[0].ReadSeries(fetchCtx, raw, start, end)
	if err != nil && fetchCtx.Err() == context.DeadlineExceeded {
		return nil, errors.Wrapf(errors.ErrCodeFetchTimeout, err, "fetch timed out after %s", l.timeout)
	}

	return bars, err
}

// commonSymbols normalises the symbols of every source and keeps those present in all of them.
// It returns the sorted canonical symbols and, for each, the raw symbol of the first source.
func (l *Loader) commonSymbols(ctx context.Context, warnings *[]string) ([]string, map[string]string, error) {
	var common map[string]string

	for i, source := range l.sources {
		raw, err := source.GetAllSymbols(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list symbols of data source %d: %w", i, err)
		}

		normalized := make(map[string]string, len(raw))

		for _, symbol := range raw {
			canonical, err := l.naming.Normalize(symbol)
			if err != nil {
				*warnings = append(*warnings, fmt.Sprintf("skipped %q: %v", symbol, err))

				continue
			}

			if previous, ok := normalized[canonical]; ok {
				*warnings = append(*warnings, fmt.Sprintf("skipped %q: duplicates %q as %s", symbol, previous, canonical))

				continue
			}

			normalized[canonical] = symbol
		}

		if common == nil {
			common = normalized

			continue
		}

		for canonical := range common {
			if _, ok := normalized[canonical]; !ok {
				delete(common, canonical)
			}
		}
	}

	symbols := make([]string, 0, len(common))
	for canonical := range common {
		symbols = append(symbols, canonical)
	}

	sort.Strings(symbols)

	return symbols, common, nil
}
