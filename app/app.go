package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"uoa-scanner/api"
	"uoa-scanner/broker"
	"uoa-scanner/cache"
	"uoa-scanner/config"
	"uoa-scanner/database"
	"uoa-scanner/firehose"
	"uoa-scanner/notifications"
	"uoa-scanner/occ"
	"uoa-scanner/realtime"
)

const (
	bucketTickInterval    = 30 * time.Second
	intradayTARefresh     = 5 * time.Minute
	dailyResetCheckPeriod = time.Minute
	minKickedScanGap      = time.Second
)

// App wires the whole pipeline together: firehose → aggregators → detector
// → scorer → filter chain → position managers, plus the monitors, the ops
// API and the persistence layer.
type App struct {
	config *config.Config
	loc    *time.Location

	db    *database.Database
	pool  *database.Pool
	redis *cache.RedisClient
	repo  *database.Repository

	brokerA *broker.AlpacaBroker
	brokerB *broker.AlpacaBroker
	stream  *broker.EquityStream

	aggregator *TradeAggregator
	buckets    *BucketAggregator
	baselines  *BaselineProvider
	detector   *Detector
	taCache    *TACache
	refData    *RefDataHandle
	regime     *RegimeMonitor
	engulfing  *EngulfingChecker
	chain      *FilterChain
	generator  *SignalGenerator

	managerA *PositionManager
	managerB *PositionManager
	hardStop *HardStopMonitor
	eod      *EODCloser

	notifier *notifications.WebhookNotifier
	events   *realtime.Broker

	scanKick chan struct{}

	lastResetDay      string
	lastBounceEvalDay string
}

// New builds the application. Any error here is an unrecoverable startup
// failure and the process exits non-zero.
func New(cfg *config.Config) (*App, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	log.Println("🗄️  Connecting to database...")
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = database.BuildDSN(cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseName, cfg.DatabaseUser, cfg.DatabasePassword)
	}
	db, err := database.Connect(dsn)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	repo := database.NewRepository(db)
	if err := repo.InitSchema(); err != nil {
		return nil, fmt.Errorf("schema initialization failed: %w", err)
	}

	pool, err := database.NewPool(dsn)
	if err != nil {
		return nil, fmt.Errorf("database pool failed: %w", err)
	}

	var redisClient *cache.RedisClient
	if cfg.RedisHost != "" {
		log.Println("🧠 Connecting to Redis...")
		redisClient = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if redisClient == nil {
			log.Println("⚠️  Redis unavailable, caching disabled")
		}
	}

	a := &App{
		config:   cfg,
		loc:      loc,
		db:       db,
		pool:     pool,
		redis:    redisClient,
		repo:     repo,
		scanKick: make(chan struct{}, 1),
	}

	a.brokerA = broker.NewAlpacaBroker("A", cfg.AccountA.APIKey, cfg.AccountA.APISecret, cfg.BrokerBaseURL)
	a.brokerB = broker.NewAlpacaBroker("B", cfg.AccountB.APIKey, cfg.AccountB.APISecret, cfg.BrokerBaseURL)
	a.stream = broker.NewEquityStream(cfg.AccountA.APIKey, cfg.AccountA.APISecret)

	a.aggregator = NewTradeAggregator(time.Duration(cfg.Detector.WindowSeconds)*time.Second, cfg.Detector.MaxWindowEntries)
	a.buckets = NewBucketAggregator(pool, loc)
	a.baselines = NewBaselineProvider(repo, cfg.Detector.BaselineLookbackDays, cfg.Detector.BaselineFallback)
	a.detector = NewDetector(a.aggregator, a.baselines, cfg.Detector)

	ref, err := LoadReferenceData(repo, time.Now())
	if err != nil {
		return nil, fmt.Errorf("reference data load failed: %w", err)
	}
	a.refData = NewRefDataHandle(ref)
	a.taCache = NewTACache(repo)
	a.regime = NewRegimeMonitor(a.brokerA, redisClient, cfg.BenchmarkSymbol, loc)
	a.engulfing = NewEngulfingChecker(repo, time.Duration(cfg.Trading.EngulfingLookbackMinutes)*time.Minute)
	a.chain = NewFilterChain(a.refData, a.regime, cfg.Trading.MinScore, 50_000)
	a.generator = NewSignalGenerator(a.brokerA, a.taCache, a.refData, loc)

	a.notifier = notifications.NewWebhookNotifier(cfg.WebhookURLs)
	a.events = realtime.NewBroker()
	outcomes := newOutcomeFanout(a.notifier, a.events)

	limits := func(maxConcurrent int) PositionLimits {
		return PositionLimits{
			MaxConcurrent: maxConcurrent,
			NotionalCap:   cfg.Trading.PositionNotionalCap,
			EquityPct:     cfg.Trading.PositionPct,
			HardStopPct:   cfg.Trading.HardStopPct,
			SectorCap:     cfg.Trading.SectorCap,
		}
	}
	a.managerA = NewPositionManager("A", a.brokerA, database.NewTradeLog(db, "A"), repo,
		a.refData, a.regime, a.stream, outcomes, limits(cfg.Trading.MaxConcurrentA))
	a.managerB = NewPositionManager("B", a.brokerB, database.NewTradeLog(db, "B"), repo,
		a.refData, a.regime, a.stream, outcomes, limits(cfg.Trading.MaxConcurrentB))

	a.hardStop = NewHardStopMonitor(a.stream, a.managerA, a.managerB)
	exitHour, exitMinute, _ := config.ParseClock(cfg.Trading.ExitTime)
	a.eod = NewEODCloser(exitHour, exitMinute, loc, a.managerA, a.managerB)

	return a, nil
}

// Start runs the application until an interrupt arrives.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reconcile before anything trades: restore what survived, heal what
	// did not, clean up what the broker holds without a record.
	if err := a.managerA.SyncOnStartup(ctx); err != nil {
		return fmt.Errorf("account A reconciliation failed: %w", err)
	}
	if err := a.managerB.SyncOnStartup(ctx); err != nil {
		return fmt.Errorf("account B reconciliation failed: %w", err)
	}

	a.maybeBounceEval(ctx)
	a.lastResetDay = time.Now().In(a.loc).Format("2006-01-02")

	go a.events.Run()
	a.stream.SetHandler(a.hardStop.OnTrade)
	a.stream.Start(ctx)
	a.hardStop.Start(ctx)
	a.eod.Start(ctx)

	apiServer := api.NewServer(a.repo, a.events, a.healthStats, a.positionLister)
	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			log.Printf("⚠️  API server failed: %v", err)
		}
	}()

	var wg sync.WaitGroup

	feed := firehose.NewConnectionManager(a.config.FirehoseWSURL, a.config.FirehoseAPIKey, a.handleTrade)
	feed.OnBatch(a.kickScan)
	wg.Add(1)
	go func() {
		defer wg.Done()
		feed.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runPeriodic(ctx)
	}()

	err := a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// handleTrade is the firehose sink: parse, validate, feed both aggregators.
// It never blocks on persistence and never returns an error upstream.
func (a *App) handleTrade(msg firehose.TradeMessage) {
	contract, err := occ.Parse(msg.Symbol)
	if err != nil {
		a.aggregator.CountMalformed()
		return
	}

	trade := OptionTrade{
		OCCSymbol:  msg.Symbol,
		Underlying: contract.Underlying,
		Right:      contract.Right,
		Strike:     contract.Strike,
		Expiry:     contract.Expiry,
		Price:      msg.Price,
		Size:       msg.Size,
		Notional:   msg.Price * float64(msg.Size) * 100,
		IsSweep:    msg.IsSweep(),
		Timestamp:  msg.Time(),
	}
	if trade.Price <= 0 || trade.Size <= 0 {
		a.aggregator.AddTrade(trade) // counted as malformed there
		return
	}

	a.aggregator.AddTrade(trade)
	a.buckets.Add(trade)
}

// runPeriodic owns the detector scan, the bucket flush tick, the intraday
// TA refresh and the daily reset. Firehose batches kick an extra scan
// through scanKick, coalesced to at most one per second.
func (a *App) runPeriodic(ctx context.Context) {
	scan := time.NewTicker(time.Duration(a.config.Detector.ScanIntervalSeconds) * time.Second)
	buckets := time.NewTicker(bucketTickInterval)
	ta := time.NewTicker(intradayTARefresh)
	daily := time.NewTicker(dailyResetCheckPeriod)
	defer scan.Stop()
	defer buckets.Stop()
	defer ta.Stop()
	defer daily.Stop()

	var lastScan time.Time
	runScan := func() {
		now := time.Now()
		lastScan = now
		for _, trigger := range a.detector.Scan(now) {
			a.processTrigger(ctx, trigger)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-scan.C:
			runScan()
		case <-a.scanKick:
			if time.Since(lastScan) >= minKickedScanGap {
				runScan()
			}
		case <-buckets.C:
			a.buckets.FlushIfBoundaryCrossed(time.Now())
		case <-ta.C:
			a.taCache.RefreshIntraday(time.Now())
		case <-daily.C:
			a.maybeDailyReset(ctx)
			a.maybeBounceEval(ctx)
		}
	}
}

// kickScan requests an on-demand detector scan. The channel holds at most
// one pending request so a burst of batches never queues up work.
func (a *App) kickScan() {
	select {
	case a.scanKick <- struct{}{}:
	default:
	}
}

// processTrigger runs one trigger through scoring, enrichment, the filter
// chain and both accounts' admission paths.
func (a *App) processTrigger(ctx context.Context, trigger Trigger) {
	go func() {
		if err := a.repo.UpsertTrackedSymbol(trigger.Symbol, trigger.At); err != nil {
			log.Printf("⚠️  Tracked-symbol upsert failed for %s: %v", trigger.Symbol, err)
		}
	}()

	sig := a.generator.Generate(ctx, trigger)
	passed, reason := a.chain.Evaluate(sig)
	a.persistEvaluation(sig, passed, reason)

	if passed {
		a.events.Broadcast("signal_passed", map[string]interface{}{
			"symbol": sig.Symbol,
			"score":  sig.Score,
			"spot":   sig.SpotPrice,
			"ratio":  sig.VolumeRatio,
		})

		if err := a.repo.SaveActiveSignal(&database.ActiveSignal{
			DetectedAt: sig.At,
			Symbol:     sig.Symbol,
			Score:      sig.Score,
			SpotPrice:  sig.SpotPrice,
			Status:     "ACTIVE",
		}); err != nil {
			log.Printf("⚠️  Active-signal write failed for %s: %v", sig.Symbol, err)
		}

		go a.openFor(ctx, a.managerA, sig)
	}

	// Account B gates only on score plus engulfing confirmation, before
	// the full chain. A signal the chain rejected can still trade on B.
	if sig.Score >= a.config.Trading.MinScore {
		if present, strength := a.engulfing.Check(sig.Symbol); present {
			log.Printf("🕯️  Engulfing confirmation for %s (%s)", sig.Symbol, strength)
			go a.openFor(ctx, a.managerB, sig)
		}
	}
}

// openFor submits a signal to one account. Fill and close events reach the
// webhook and the SSE stream through the manager's outcome fanout.
func (a *App) openFor(ctx context.Context, pm *PositionManager, sig *Signal) {
	_, reason, err := pm.OpenPosition(ctx, sig)
	if err != nil {
		log.Printf("❌ [%s] Open failed for %s: %v", pm.Account(), sig.Symbol, err)
		return
	}
	if reason != "" {
		log.Printf("ℹ️  [%s] %s not opened: %s", pm.Account(), sig.Symbol, reason)
	}
}

// persistEvaluation appends the evaluation row, pass or fail.
func (a *App) persistEvaluation(sig *Signal, passed bool, reason string) {
	components, _ := json.Marshal(sig.Components)
	metadata, _ := json.Marshal(sig.Metadata)

	eval := &database.SignalEvaluation{
		DetectedAt:       sig.At,
		Symbol:           sig.Symbol,
		VolumeRatio:      sig.VolumeRatio,
		BaselineNotional: sig.BaselineNotional,
		NotionalTotal:    sig.Stats.NotionalTotal,
		ContractsTotal:   sig.Stats.ContractsTotal,
		Prints:           sig.Stats.Prints,
		CallPct:          sig.Stats.CallPct,
		SweepPct:         sig.Stats.SweepPct,
		UniqueStrikes:    sig.Stats.UniqueStrikes,
		ScoreTotal:       sig.Score,
		ComponentScores:  string(components),
		RSI14:            sig.RSI14,
		SMA20:            sig.SMA20,
		SMA50:            sig.SMA50,
		SpotPrice:        sig.SpotPrice,
		Trend:            sig.Trend,
		PassedAllFilters: passed,
		Metadata:         string(metadata),
	}
	if !passed {
		eval.RejectionReason = &reason
	}

	go func() {
		if err := a.repo.SaveEvaluation(eval); err != nil {
			log.Printf("⚠️  Evaluation write failed for %s: %v", sig.Symbol, err)
		}
	}()
}

// maybeDailyReset runs the start-of-day housekeeping once per local date.
func (a *App) maybeDailyReset(ctx context.Context) {
	today := time.Now().In(a.loc).Format("2006-01-02")
	if today == a.lastResetDay {
		return
	}
	a.lastResetDay = today
	log.Printf("🌅 Daily reset for %s", today)

	a.aggregator.ResetAll()
	a.detector.ResetDaily()
	a.regime.ResetDaily(ctx)
	a.engulfing.RefreshWatchlist()
	a.taCache.RefreshIntraday(time.Now())
	a.managerA.ResetDaily()
	a.managerB.ResetDaily()
	a.eod.ResetDaily()

	if ref, err := LoadReferenceData(a.repo, time.Now()); err == nil {
		a.refData.Replace(ref)
	} else {
		log.Printf("⚠️  Reference data refresh failed, keeping yesterday's: %v", err)
	}
}

// maybeBounceEval runs the bounce-day check once per local date, but only
// after the open: before it today's DailyOpen does not exist and the daily
// bars still end at the prior close.
func (a *App) maybeBounceEval(ctx context.Context) {
	now := time.Now().In(a.loc)
	if now.Hour() < 9 || (now.Hour() == 9 && now.Minute() < 31) {
		return
	}
	today := now.Format("2006-01-02")
	if today == a.lastBounceEvalDay {
		return
	}
	a.lastBounceEvalDay = today
	a.regime.EvaluateBounceDay(ctx)
}

// healthStats feeds the /health endpoint.
func (a *App) healthStats() map[string]interface{} {
	openedA, closedA, pnlA := a.managerA.DailyStats()
	openedB, closedB, pnlB := a.managerB.DailyStats()
	return map[string]interface{}{
		"dropped_trades":   a.aggregator.Dropped(),
		"malformed_trades": a.aggregator.Malformed(),
		"account_a":        map[string]interface{}{"opened": openedA, "closed": closedA, "pnl": pnlA},
		"account_b":        map[string]interface{}{"opened": openedB, "closed": closedB, "pnl": pnlB},
	}
}

// positionLister feeds the /api/positions endpoint.
func (a *App) positionLister(account string) []api.PositionView {
	pm := a.managerA
	if account == "B" {
		pm = a.managerB
	}

	positions := pm.Positions()
	out := make([]api.PositionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, api.PositionView{
			Symbol:     p.Symbol,
			EntryTime:  p.EntryTime,
			EntryPrice: p.EntryPrice,
			Shares:     p.Shares,
			Score:      p.Score,
			State:      string(p.State),
		})
	}
	return out
}

// gracefulShutdown waits for an interrupt, then flushes what must not be
// lost. Open positions are deliberately left alone: liquidation happens
// only on the EOD trigger, never on shutdown.
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	log.Println("🛑 Shutdown signal received, initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		log.Println("📊 Flushing baseline buckets...")
		a.buckets.FlushAll()

		if err := a.pool.Close(); err != nil {
			log.Printf("Error closing database pool: %v", err)
		}
		if err := a.db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			}
		}
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		log.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
