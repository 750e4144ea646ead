package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/chain-efficiency/internal/chains"
	"github.com/web3-frozen/chain-efficiency/internal/efficiency"
	"github.com/web3-frozen/chain-efficiency/internal/llama"
	"github.com/web3-frozen/chain-efficiency/internal/metrics"
	"github.com/web3-frozen/chain-efficiency/internal/store"
)

const (
	DefaultSchedule        = "@every 5m"
	DefaultDetailMinTVL    = 100_000_000
	DefaultDetailMaxChains = 20
	DefaultRetention       = 30 * 24 * time.Hour

	archiveTimeout = 30 * time.Second
)

// ErrRefreshInProgress is returned when a refresh is already running, here or
// on another replica holding the refresh lock.
var ErrRefreshInProgress = errors.New("refresh already in progress")

var errLockLost = errors.New("refresh lock lost to another replica")

// SourceError reports a required upstream dataset that could not be fetched.
type SourceError struct {
	Source  string
	Message string
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s fetch failed: %s", e.Source, e.Message)
}

// Upstream is the DefiLlama surface a refresh reads. *llama.Client implements it.
type Upstream interface {
	ChainTVL(ctx context.Context) llama.Response[[]llama.ChainTVL]
	StablecoinChains(ctx context.Context) llama.Response[[]llama.StablecoinChain]
	DexOverview(ctx context.Context) llama.Response[llama.Overview]
	FeesOverview(ctx context.Context) llama.Response[llama.Overview]
	ChainDexVolumes(ctx context.Context, chains []string) llama.Partial[llama.ChainTotal]
	ChainFees(ctx context.Context, chains []string) llama.Partial[llama.ChainTotal]
}

// Archiver persists finished refreshes. *store.Store implements it.
type Archiver interface {
	SaveRun(ctx context.Context, run store.Run, list []efficiency.ChainMetrics) error
	PruneRuns(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Locker serializes refreshes across replicas. *refreshlock.Lock implements it.
// Keep renews a held lock until stop is called and closes lost if another
// holder took it over.
type Locker interface {
	Acquire(ctx context.Context) (token string, ok bool, err error)
	Keep(ctx context.Context, token string) (lost <-chan struct{}, stop func())
	Release(ctx context.Context, token string) error
}

// Options tunes an Engine. Zero fields take their defaults.
type Options struct {
	Schedule        string
	DetailMinTVL    float64
	DetailMaxChains int
	Retention       time.Duration
}

func (o Options) withDefaults() Options {
	if o.Schedule == "" {
		o.Schedule = DefaultSchedule
	}
	if o.DetailMinTVL <= 0 {
		o.DetailMinTVL = DefaultDetailMinTVL
	}
	if o.DetailMaxChains <= 0 {
		o.DetailMaxChains = DefaultDetailMaxChains
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	return o
}

// State is what the dashboard shows. Chains is replaced wholesale by each
// refresh and must not be modified by readers.
type State struct {
	Chains      []efficiency.ChainMetrics `json:"chains"`
	Loading     bool                      `json:"loading"`
	Error       string                    `json:"error,omitempty"`
	LastUpdated *time.Time                `json:"lastUpdated"`
	Warnings    []string                  `json:"warnings"`
	RunID       string                    `json:"runId,omitempty"`
}

// Engine runs the fetch, join and validate pipeline and caches its result.
type Engine struct {
	upstream Upstream
	norm     *chains.Normalizer
	calc     *efficiency.Calculator
	rules    efficiency.Rules
	opts     Options
	logger   *slog.Logger

	archive Archiver
	lock    Locker

	inFlight atomic.Bool

	mu    sync.RWMutex
	state State

	subMu sync.Mutex
	subs  map[chan State]struct{}
}

func NewEngine(up Upstream, norm *chains.Normalizer, rules efficiency.Rules, opts Options, logger *slog.Logger) *Engine {
	return &Engine{
		upstream: up,
		norm:     norm,
		calc:     efficiency.NewCalculator(norm, rules),
		rules:    rules,
		opts:     opts.withDefaults(),
		logger:   logger,
		state:    State{Chains: []efficiency.ChainMetrics{}, Warnings: []string{}},
		subs:     make(map[chan State]struct{}),
	}
}

// SetArchive enables archiving of every finished refresh.
func (e *Engine) SetArchive(a Archiver) { e.archive = a }

// SetLock makes refreshes take l before touching the upstream.
func (e *Engine) SetLock(l Locker) { e.lock = l }

// State returns the latest cached state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Refreshing reports whether a refresh is running in this process.
func (e *Engine) Refreshing() bool { return e.inFlight.Load() }

// Subscribe returns a channel that receives the state after every change.
// Slow subscribers miss intermediate states. Call the returned func to
// unsubscribe.
func (e *Engine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, ch)
			e.subMu.Unlock()
		})
	}
}

func (e *Engine) publish(s State) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Run refreshes once, then on the configured cron schedule until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	sched := cron.New()
	_, err := sched.AddFunc(e.opts.Schedule, func() { e.refreshLogged(ctx) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", e.opts.Schedule, err)
	}

	e.refreshLogged(ctx)

	sched.Start()
	e.logger.Info("refresh scheduled", "schedule", e.opts.Schedule)
	<-ctx.Done()
	<-sched.Stop().Done()
	return nil
}

func (e *Engine) refreshLogged(ctx context.Context) {
	if err := e.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) && ctx.Err() == nil {
		e.logger.Error("refresh failed", "error", err)
	}
}

// Trigger starts a refresh in the background and returns at once. It returns
// ErrRefreshInProgress without starting anything when one is already running
// here or another replica holds the refresh lock. ctx bounds the refresh, so
// it must outlive the calling request.
func (e *Engine) Trigger(ctx context.Context) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		metrics.RefreshTotal.WithLabelValues("skipped").Inc()
		return ErrRefreshInProgress
	}
	hctx, release, notes, err := e.hold(ctx)
	if err != nil {
		e.inFlight.Store(false)
		return err
	}
	go func() {
		defer e.inFlight.Store(false)
		defer release()
		if err := e.refresh(hctx, notes); err != nil && ctx.Err() == nil {
			e.logger.Error("refresh failed", "error", err)
		}
	}()
	return nil
}

// Refresh reruns the whole pipeline and replaces the cached state. Only one
// refresh runs at a time; a concurrent call gets ErrRefreshInProgress.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		metrics.RefreshTotal.WithLabelValues("skipped").Inc()
		return ErrRefreshInProgress
	}
	defer e.inFlight.Store(false)

	hctx, release, notes, err := e.hold(ctx)
	if err != nil {
		return err
	}
	defer release()
	return e.refresh(hctx, notes)
}

// hold takes the refresh lock when one is configured and keeps it renewed
// until release. The returned context is canceled if the lock is lost. When
// Redis cannot be reached the refresh goes ahead unlocked and notes carries a
// warning for the dashboard.
func (e *Engine) hold(ctx context.Context) (hctx context.Context, release func(), notes []string, err error) {
	if e.lock == nil {
		return ctx, func() {}, nil, nil
	}

	token, ok, err := e.lock.Acquire(ctx)
	if err != nil {
		metrics.RefreshLockErrorsTotal.WithLabelValues("acquire").Inc()
		e.logger.Warn("refresh lock unavailable, refreshing without it", "error", err)
		return ctx, func() {}, []string{fmt.Sprintf("refresh lock unavailable: %v", err)}, nil
	}
	if !ok {
		metrics.RefreshTotal.WithLabelValues("skipped").Inc()
		e.logger.Info("refresh held by another replica")
		return nil, nil, nil, ErrRefreshInProgress
	}

	lost, stop := e.lock.Keep(ctx, token)
	hctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		select {
		case <-lost:
			metrics.RefreshLockErrorsTotal.WithLabelValues("lost").Inc()
			e.logger.Error("refresh lock lost, aborting refresh")
			cancel(errLockLost)
		case <-done:
		}
	}()

	return hctx, func() {
		close(done)
		stop()
		cancel(nil)
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer rcancel()
		if rerr := e.lock.Release(rctx, token); rerr != nil {
			metrics.RefreshLockErrorsTotal.WithLabelValues("release").Inc()
			e.logger.Warn("release refresh lock", "error", rerr)
		}
	}, nil, nil
}

func (e *Engine) refresh(ctx context.Context, notes []string) (err error) {
	runID := uuid.New()
	start := time.Now()
	logger := e.logger.With("run_id", runID.String())

	e.mu.Lock()
	e.state.Loading = true
	e.state.Error = ""
	snapshot := e.state
	e.mu.Unlock()
	e.publish(snapshot)

	var res result
	defer func() {
		if r := recover(); r != nil {
			logger.Error("refresh panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("refresh panicked: %v", r)
		}
		e.finish(ctx, logger, runID, start, res, err)
	}()

	res, err = e.run(ctx, logger)
	if err == nil && len(notes) > 0 {
		res.warnings = append(append([]string{}, notes...), res.warnings...)
	}
	return err
}

type result struct {
	chains   []efficiency.ChainMetrics
	warnings []string
}

func (e *Engine) run(ctx context.Context, logger *slog.Logger) (result, error) {
	var (
		tvl    llama.Response[[]llama.ChainTVL]
		stable llama.Response[[]llama.StablecoinChain]
		dex    llama.Response[llama.Overview]
		fees   llama.Response[llama.Overview]
	)

	var g errgroup.Group
	g.Go(guard(logger, func() { tvl = e.upstream.ChainTVL(ctx) }))
	g.Go(guard(logger, func() { stable = e.upstream.StablecoinChains(ctx) }))
	g.Go(guard(logger, func() { dex = e.upstream.DexOverview(ctx) }))
	g.Go(guard(logger, func() { fees = e.upstream.FeesOverview(ctx) }))
	if err := g.Wait(); err != nil {
		return result{}, err
	}

	if !tvl.OK() {
		return result{}, &SourceError{Source: "TVL", Message: failure(tvl.Error)}
	}
	if !stable.OK() {
		return result{}, &SourceError{Source: "Stablecoin", Message: failure(stable.Error)}
	}

	var warnings []string
	volume := map[string]float64{}
	if dex.OK() {
		volume = efficiency.AggregateVolume(dex.Data.Protocols, e.norm)
	} else {
		warnings = append(warnings, fmt.Sprintf("API 2 failed: %s", failure(dex.Error)))
	}
	feeMap := map[string]float64{}
	if fees.OK() {
		feeMap = efficiency.AggregateFees(fees.Data.Protocols, e.norm)
	} else {
		warnings = append(warnings, fmt.Sprintf("API 3 failed: %s", failure(fees.Error)))
	}

	major := e.majorChains(*tvl.Data)
	detailVol := e.upstream.ChainDexVolumes(ctx, major)
	e.override(volume, detailVol.Data)
	detailFees := e.upstream.ChainFees(ctx, major)
	e.override(feeMap, detailFees.Data)
	for _, w := range detailVol.Warnings {
		warnings = append(warnings, "dex volume: "+w)
	}
	for _, w := range detailFees.Warnings {
		warnings = append(warnings, "fees: "+w)
	}
	if ctx.Err() != nil {
		return result{}, context.Cause(ctx)
	}

	ev := e.calc.Evaluate(*tvl.Data, *stable.Data, volume, feeMap)
	if len(ev.DuplicateStablecoins) > 0 {
		logger.Warn("duplicate stablecoin records, first kept", "chains", ev.DuplicateStablecoins)
	}
	for _, r := range ev.Rejections {
		metrics.ChainsRejectedTotal.WithLabelValues(r.Stage, r.Reason).Inc()
	}

	out := make([]efficiency.ChainMetrics, 0, len(ev.Metrics))
	for _, m := range ev.Metrics {
		if reason := e.rules.SanitizeCheck(m); reason != "" {
			metrics.ChainsRejectedTotal.WithLabelValues(efficiency.StageSanitize, reason).Inc()
			continue
		}
		out = append(out, m)
	}

	logger.Info("metrics computed",
		"tvl_records", len(*tvl.Data),
		"major_chains", len(major),
		"chains", len(out),
		"rejected", len(ev.Rejections)+len(ev.Metrics)-len(out),
		"warnings", len(warnings))
	return result{chains: out, warnings: warnings}, nil
}

// majorChains returns the names of the first DetailMaxChains chains, in TVL
// order, whose TVL exceeds DetailMinTVL.
func (e *Engine) majorChains(tvl []llama.ChainTVL) []string {
	var names []string
	for _, c := range tvl {
		if len(names) == e.opts.DetailMaxChains {
			break
		}
		if c.TVL > e.opts.DetailMinTVL {
			names = append(names, c.Name)
		}
	}
	return names
}

// override replaces aggregated values with non-zero per-chain totals.
func (e *Engine) override(dst map[string]float64, totals []llama.ChainTotal) {
	for _, t := range totals {
		if t.Total24h > 0 {
			dst[e.norm.Normalize(t.Chain)] = t.Total24h
		}
	}
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, runID uuid.UUID, start time.Time, res result, err error) {
	end := time.Now()
	duration := end.Sub(start)
	metrics.RefreshDuration.Observe(duration.Seconds())

	e.mu.Lock()
	e.state.Loading = false
	e.state.RunID = runID.String()
	if err != nil {
		e.state.Chains = []efficiency.ChainMetrics{}
		e.state.Warnings = []string{}
		e.state.Error = err.Error()
	} else {
		if res.warnings == nil {
			res.warnings = []string{}
		}
		e.state.Chains = res.chains
		e.state.Warnings = res.warnings
		e.state.Error = ""
		e.state.LastUpdated = &end
	}
	snapshot := e.state
	e.mu.Unlock()
	e.publish(snapshot)

	status := "success"
	if err != nil {
		status = "failed"
		logger.Error("refresh finished", "error", err, "duration", duration)
	} else {
		metrics.RefreshLastSuccess.Set(float64(end.Unix()))
		metrics.RefreshWarnings.Set(float64(len(res.warnings)))
		metrics.ChainsReported.Set(float64(len(res.chains)))
		recordChainGauges(res.chains)
		logger.Info("refresh finished", "chains", len(res.chains), "warnings", len(res.warnings), "duration", duration)
	}
	metrics.RefreshTotal.WithLabelValues(status).Inc()

	if e.archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	run := store.Run{
		ID:         runID,
		StartedAt:  start,
		FinishedAt: end,
		Status:     status,
		Chains:     len(snapshot.Chains),
		Warnings:   snapshot.Warnings,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if aerr := e.archive.SaveRun(actx, run, snapshot.Chains); aerr != nil {
		logger.Error("archive run failed", "error", aerr)
		return
	}
	if n, perr := e.archive.PruneRuns(actx, e.opts.Retention); perr != nil {
		logger.Warn("prune runs failed", "error", perr)
	} else if n > 0 {
		logger.Info("pruned archived runs", "count", n)
	}
}

func recordChainGauges(list []efficiency.ChainMetrics) {
	metrics.ChainMetricValue.Reset()
	for _, m := range list {
		metrics.ChainMetricValue.WithLabelValues(m.Chain, "tvl").Set(m.TVL)
		metrics.ChainMetricValue.WithLabelValues(m.Chain, "stablecoin_mcap").Set(m.StablecoinMcap)
		metrics.ChainMetricValue.WithLabelValues(m.Chain, "dex_volume_24h").Set(m.DexVolume24h)
		metrics.ChainMetricValue.WithLabelValues(m.Chain, "fees_24h").Set(m.Fees24h)
		metrics.ChainMetricValue.WithLabelValues(m.Chain, "stablecoin_turnover").Set(m.StablecoinTurnover)
		metrics.ChainMetricValue.WithLabelValues(m.Chain, "fee_yield").Set(m.FeeYield)
	}
}

// guard turns a panic in a fetch goroutine into an error for Wait.
func guard(logger *slog.Logger, fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("refresh panicked", "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("refresh panicked: %v", r)
			}
		}()
		fn()
		return nil
	}
}

func failure(msg string) string {
	if msg == "" {
		return "empty response"
	}
	return msg
}
