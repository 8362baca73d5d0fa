package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"polymarket-maker-go/config"
	"polymarket-maker-go/inventory"
	"polymarket-maker-go/market"
	"polymarket-maker-go/metrics"
	"polymarket-maker-go/order"
	"polymarket-maker-go/strategy"
)

// Exchange 引擎直接驱动的交易所表面；由 gateway.Client 实现。
type Exchange interface {
	FetchBook(ctx context.Context, tokenID string) (*market.Book, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	CancelAll(ctx context.Context) (int, error)
	PlaceLiquidation(ctx context.Context, tokenID string, price, size float64) (float64, error)
}

const (
	// fetchPace spaces the two book fetches and the two reconcile calls so a
	// cycle never bursts the venue rate limit.
	fetchPace    = 500 * time.Millisecond
	errorBackoff = 5 * time.Second
	// skipLogInterval throttles repeated skip warnings; a capped market can
	// stay capped for hours and one line per 30s is plenty.
	skipLogInterval = 30 * time.Second
	stopTimeout     = 10 * time.Second
)

// Components 引擎依赖组件
type Components struct {
	Config     *config.Config
	Exchange   Exchange
	Books      *market.Manager
	Ledger     *inventory.Ledger
	Pricer     *strategy.Pricer
	Reconciler *order.Reconciler
	Journal    order.Journal // optional: final snapshot on shutdown
	Logger     *zap.Logger
}

// Engine runs the quote cycle: fetch both books, price both outcomes, and
// reconcile each resting bid toward its target. One cycle per refresh
// interval; a failed cycle backs off and the next one starts clean.
type Engine struct {
	cfg      *config.Config
	exchange Exchange
	books    *market.Manager
	ledger   *inventory.Ledger
	pricer   *strategy.Pricer
	rec      *order.Reconciler
	journal  order.Journal
	log      *zap.Logger
	dryRun   bool

	mu   sync.RWMutex
	mode strategy.Mode

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}

	skipMu      sync.Mutex
	lastSkipLog map[string]time.Time

	expiryLogged bool
}

// New 创建引擎；dryRun 只算报价不下单。
func New(c Components, dryRun bool) (*Engine, error) {
	if c.Config == nil {
		return nil, errors.New("config is required")
	}
	if c.Exchange == nil {
		return nil, errors.New("exchange is required")
	}
	if c.Books == nil || c.Ledger == nil || c.Pricer == nil {
		return nil, errors.New("books, ledger and pricer are required")
	}
	if c.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Engine{
		cfg:         c.Config,
		exchange:    c.Exchange,
		books:       c.Books,
		ledger:      c.Ledger,
		pricer:      c.Pricer,
		rec:         c.Reconciler,
		journal:     c.Journal,
		log:         c.Logger,
		dryRun:      dryRun,
		mode:        strategy.ModeStopped,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
		lastSkipLog: make(map[string]time.Time),
	}, nil
}

// Start launches the quote loop.
func (e *Engine) Start(ctx context.Context) {
	e.started.Store(true)
	e.log.Info("quote engine starting",
		zap.String("condition_id", e.cfg.Market.ConditionID),
		zap.Duration("refresh_interval", e.cfg.RefreshInterval()),
		zap.Bool("dry_run", e.dryRun))
	go e.run(ctx)
}

// Done is closed when the quote loop has exited.
func (e *Engine) Done() <-chan struct{} { return e.doneChan }

// Mode reports the current quoting mode.
func (e *Engine) Mode() strategy.Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

func (e *Engine) setMode(m strategy.Mode) {
	e.mu.Lock()
	e.mode = m
	e.mu.Unlock()
}

// run 主事件循环
func (e *Engine) run(ctx context.Context) {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.cfg.RefreshInterval())
	defer ticker.Stop()
	statusTicker := time.NewTicker(e.cfg.StatusInterval())
	defer statusTicker.Stop()

	// first cycle immediately, not one interval later
	if err := e.tick(ctx); err != nil {
		e.onTickError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Info("context done, quote loop exiting")
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.onTickError(ctx, err)
			}
		case <-statusTicker.C:
			e.logStatus()
		}
	}
}

// onTickError counts the failure and backs off so a flapping venue is not
// hammered at full refresh rate.
func (e *Engine) onTickError(ctx context.Context, err error) {
	select {
	case <-e.stopChan:
		return // shutdown interrupted the cycle, not a venue problem
	default:
	}
	if ctx.Err() != nil {
		return
	}
	metrics.LoopErrors.Inc()
	e.log.Error("quote cycle failed", zap.Error(err))
	select {
	case <-time.After(errorBackoff):
	case <-ctx.Done():
	case <-e.stopChan:
	}
}

// tick runs one full quote cycle.
func (e *Engine) tick(ctx context.Context) error {
	if e.rec.Halted() {
		return nil
	}

	if e.cfg.HasExpiry() && e.cfg.TimeUntilExpiry() <= 0 {
		return e.onExpired(ctx)
	}

	if err := e.refreshBooks(ctx); err != nil {
		return err
	}

	skew := e.cfg.Skew(e.ledger.DeltaQ())
	yesTarget, yesOK := e.target(market.OutcomeYes, skew)
	noTarget, noOK := e.target(market.OutcomeNo, -skew)

	e.setMode(strategy.ModeQuoting)

	if e.dryRun {
		e.log.Info("dry run: computed targets",
			zap.Float64("skew", skew),
			zap.Bool("yes_quotable", yesOK), zap.Float64("yes_target", yesTarget),
			zap.Bool("no_quotable", noOK), zap.Float64("no_target", noTarget))
		return nil
	}

	// One outcome failing never blocks the other; busy and pending-cancel
	// slots resolve themselves by the next cycle.
	var firstErr error
	if err := e.rec.Reconcile(ctx, market.OutcomeYes, yesTarget, yesOK); err != nil {
		firstErr = e.noteReconcileErr(market.OutcomeYes, err)
	}
	if err := e.pace(ctx); err != nil {
		return firstErr
	}
	if err := e.rec.Reconcile(ctx, market.OutcomeNo, noTarget, noOK); err != nil {
		if noted := e.noteReconcileErr(market.OutcomeNo, err); firstErr == nil {
			firstErr = noted
		}
	}
	return firstErr
}

// onExpired pulls both quotes once the market's expiry passes. The process
// keeps running so the operator can still see status and stop cleanly.
func (e *Engine) onExpired(ctx context.Context) error {
	e.setMode(strategy.ModeStopped)
	if !e.expiryLogged {
		e.log.Warn("market expired, quoting stopped",
			zap.Time("expiry", e.cfg.Market.Expiry))
		e.expiryLogged = true
	}
	if e.dryRun {
		return nil
	}
	var firstErr error
	for _, o := range market.Outcomes() {
		if err := e.rec.Reconcile(ctx, o, 0, false); err != nil {
			if noted := e.noteReconcileErr(o, err); firstErr == nil {
				firstErr = noted
			}
		}
	}
	return firstErr
}

// refreshBooks fetches both outcome books with pacing between them.
func (e *Engine) refreshBooks(ctx context.Context) error {
	yesBook, err := e.exchange.FetchBook(ctx, e.cfg.Market.TokenIDYes)
	if err != nil {
		return fmt.Errorf("refresh YES book: %w", err)
	}
	e.books.Update(market.OutcomeYes, yesBook)

	if err := e.pace(ctx); err != nil {
		return err
	}

	noBook, err := e.exchange.FetchBook(ctx, e.cfg.Market.TokenIDNo)
	if err != nil {
		return fmt.Errorf("refresh NO book: %w", err)
	}
	e.books.Update(market.OutcomeNo, noBook)
	return nil
}

// target prices one outcome. ok=false means "no bid this cycle": the
// reconciler pulls any resting order for the outcome.
func (e *Engine) target(outcome market.Outcome, skew float64) (float64, bool) {
	book := e.books.Book(outcome)
	if book == nil {
		e.logSkipThrottled(outcome, "no_book")
		return 0, false
	}
	bestBid, okBid := book.BestBid()
	bestAsk, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		metrics.QuotesSkipped.WithLabelValues(string(outcome), "thin_book").Inc()
		e.logSkipThrottled(outcome, "thin_book")
		return 0, false
	}

	opposite := outcome.Opposite()
	oppBestBid := 0.0
	if oppBook := e.books.Book(opposite); oppBook != nil {
		if b, ok := oppBook.BestBid(); ok {
			oppBestBid = b
		}
	}

	price, skip := e.pricer.BidPrice(bestBid, bestAsk, skew, oppBestBid, e.ledger.AvgCost(opposite))
	if skip != strategy.SkipNone {
		metrics.QuotesSkipped.WithLabelValues(string(outcome), skip.String()).Inc()
		e.logSkipThrottled(outcome, skip.String())
		return 0, false
	}
	metrics.QuotesComputed.WithLabelValues(string(outcome)).Inc()
	return price, true
}

func (e *Engine) noteReconcileErr(outcome market.Outcome, err error) error {
	if errors.Is(err, order.ErrSlotBusy) || errors.Is(err, order.ErrCancelPending) {
		e.log.Debug("reconcile deferred",
			zap.String("outcome", string(outcome)), zap.Error(err))
		return nil
	}
	metrics.LoopErrors.Inc()
	e.log.Error("reconcile failed",
		zap.String("outcome", string(outcome)), zap.Error(err))
	return nil // already counted; do not double back off the whole loop
}

// logSkipThrottled warns about a skip at most once per interval per key.
func (e *Engine) logSkipThrottled(outcome market.Outcome, reason string) {
	key := string(outcome) + "/" + reason
	e.skipMu.Lock()
	last, seen := e.lastSkipLog[key]
	now := time.Now()
	if seen && now.Sub(last) < skipLogInterval {
		e.skipMu.Unlock()
		return
	}
	e.lastSkipLog[key] = now
	e.skipMu.Unlock()

	e.log.Warn("quote skipped",
		zap.String("outcome", string(outcome)),
		zap.String("reason", reason))
}

func (e *Engine) pace(ctx context.Context) error {
	select {
	case <-time.After(fetchPace):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopChan:
		return errors.New("engine stopping")
	}
}
