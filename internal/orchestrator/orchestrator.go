package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"priceradar/internal/agent"
	"priceradar/internal/captcha"
	"priceradar/internal/config"
	"priceradar/internal/extract"
	"priceradar/internal/session"
	"priceradar/internal/store"
	"priceradar/internal/throttle"
	"priceradar/internal/usage"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

// State is the orchestrator lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateLocationPending
	StateReady
	StateCrawling
	StateClosed
)

// String returns string representation of State.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateLocationPending:
		return "location_pending"
	case StateReady:
		return "ready"
	case StateCrawling:
		return "crawling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionProvider owns browser session lifecycle.
type SessionProvider interface {
	Acquire(ctx context.Context, loc models.Location, headless bool) (*session.Session, error)
	Release(sess *session.Session)
}

// Navigator drives the browser toward navigation goals.
type Navigator interface {
	Resolve(ctx context.Context, sess *session.Session, goal models.NavigationGoal) error
	Healthy(ctx context.Context) error
	Name() string
}

// Extractor performs one deterministic search-and-parse pass.
type Extractor interface {
	Extract(ctx context.Context, sess *session.Session, query models.ProductQuery) ([]models.Result, error)
}

// Gate paces storefront requests and tracks failure streaks.
type Gate interface {
	Allow(platform string) bool
	RecordSuccess(platform string)
	RecordFailure(platform string, err error)
}

// Locator is the deterministic delivery-address fallback used when the
// AI agent is unavailable or has exhausted its attempts.
type Locator interface {
	SetLocation(ctx context.Context, sess *session.Session, loc models.Location) error
}

// Orchestrator is the crawl state machine. It owns the browser session
// and decides, per step, whether the AI navigation agent or the
// deterministic path handles the work. The driving methods (Init,
// SetLocation, Crawl, Close) belong to one goroutine; State, Status and
// Run are safe to call from others, the status server polls them.
type Orchestrator struct {
	config    *config.Config
	logger    *logrus.Logger
	sessions  SessionProvider
	navigator Navigator
	extractor Extractor
	gate      Gate
	locator   Locator
	solver    captcha.Solver
	tracker   *usage.Tracker
	runs      store.RunStore

	// mu guards state and the run record against the status server.
	mu    sync.Mutex
	state State
	sess  *session.Session
	run   *models.CrawlRun

	// consecutive rate-limit hits across queries; drives the scaled
	// inter-query backoff
	rateLimitStreak int

	sleep      func(time.Duration)
	queryDelay func() time.Duration
}

// New wires an orchestrator from configuration. AI availability is
// resolved here: a requested but unconfigurable agent downgrades the
// run to deterministic-only instead of failing it.
func New(cfg *config.Config) (*Orchestrator, error) {
	platform, ok := models.Platforms[cfg.Crawler.Platform]
	if !ok || !platform.Enabled {
		return nil, fmt.Errorf("unsupported platform: %s", cfg.Crawler.Platform)
	}

	runs, err := store.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}

	o := &Orchestrator{
		config:    cfg,
		logger:    utils.GetLogger(),
		sessions:  session.NewManager(cfg),
		extractor: extract.NewEngine(cfg),
		gate:      throttle.NewLimiter(cfg),
		locator:   NewDeterministicLocator(cfg),
		solver:    captcha.NewTwoCaptchaSolver(cfg),
		runs:      runs,
		state:     StateUninitialized,
		sleep:     time.Sleep,
	}
	o.queryDelay = func() time.Duration {
		spread := cfg.Crawler.QueryDelayMax - cfg.Crawler.QueryDelayMin
		if spread <= 0 {
			return cfg.Crawler.QueryDelayMin
		}
		return cfg.Crawler.QueryDelayMin + time.Duration(rand.Int63n(int64(spread)))
	}

	mode := cfg.ResolveAI()
	if mode.Enabled {
		nav, err := agent.New(cfg, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to create navigation agent: %w", err)
		}
		o.navigator = nav
	}

	o.run = &models.CrawlRun{
		ID:           utils.GenerateRunID(),
		Platform:     cfg.Crawler.Platform,
		AIRequested:  cfg.Crawler.UseAI,
		AIActive:     mode.Enabled,
		AIDowngraded: mode.Downgraded,
		Provider:     mode.Provider,
	}
	o.tracker = usage.NewTracker(mode.Provider)

	if mode.Downgraded {
		o.logger.Warn("AI agent requested but no provider credentials found, downgrading to deterministic-only crawl")
	}

	return o, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// setState transitions the lifecycle state.
func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run returns the run record accumulated so far.
func (o *Orchestrator) Run() *models.CrawlRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.run.Usage = o.tracker.Summary()
	return o.run
}

// Status reports the live crawl state for the status API.
func (o *Orchestrator) Status() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]interface{}{
		"state":         o.state.String(),
		"run_id":        o.run.ID,
		"platform":      o.run.Platform,
		"ai_active":     o.run.AIActive,
		"ai_downgraded": o.run.AIDowngraded,
		"provider":      o.run.Provider,
		"outcomes":      len(o.run.Outcomes),
		"agent_calls":   o.tracker.Calls(),
	}
}

// Init acquires a browser session prepared for the given delivery
// location and opens the storefront. On success the orchestrator is
// waiting for SetLocation.
func (o *Orchestrator) Init(ctx context.Context, loc models.Location) error {
	if o.State() != StateUninitialized {
		return fmt.Errorf("init called in state %s", o.State())
	}
	o.mu.Lock()
	o.state = StateInitializing
	o.run.Location = loc
	o.run.StartedAt = time.Now()
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"run_id":   o.run.ID,
		"platform": o.run.Platform,
		"location": loc.Name,
		"ai":       o.run.AIActive,
		"provider": o.run.Provider,
	}).Info("Initializing crawl run")

	sess, err := o.sessions.Acquire(ctx, loc, o.config.Crawler.Headless)
	if err != nil {
		o.setState(StateClosed)
		return fmt.Errorf("session acquisition failed: %w", err)
	}
	o.sess = sess

	platform := models.Platforms[o.run.Platform]
	if err := sess.Navigate(ctx, platform.H5URL, o.config.Crawler.Timeout); err != nil {
		o.sessions.Release(sess)
		o.sess = nil
		o.setState(StateClosed)
		return fmt.Errorf("failed to open storefront: %w", err)
	}

	o.setState(StateLocationPending)
	return nil
}

// SetLocation establishes the delivery address. With an active agent
// the goal goes to the AI path first, with exponential backoff between
// attempts; after the attempt budget, or immediately when AI is off,
// the deterministic fallback runs. Failure here is fatal to the run.
func (o *Orchestrator) SetLocation(ctx context.Context) error {
	if o.State() != StateLocationPending {
		return fmt.Errorf("set location called in state %s", o.State())
	}
	loc := o.run.Location

	agentTried := o.navigator != nil
	if agentTried {
		if err := o.resolveWithRetry(ctx, models.SetLocationGoal(loc)); err == nil {
			o.setState(StateReady)
			return nil
		}
		o.logger.Warn("Agent could not set delivery location, trying deterministic fallback")
	}

	if err := o.locator.SetLocation(ctx, o.sess, loc); err != nil {
		kind := utils.LocationUnstable
		if agentTried {
			kind = utils.LocationAgentFailed
		}
		fatal := utils.NewLocationError(kind, err.Error())
		// Close so the aborted run, downgrade metadata included, still
		// reaches the run store.
		if cerr := o.Close(ctx); cerr != nil {
			o.logger.WithError(cerr).Warn("Failed to persist aborted run")
		}
		return fatal
	}

	o.setState(StateReady)
	return nil
}

// Crawl runs every query in order against the storefront. Each query
// gets exactly one outcome slot; recoverable failures are retried up to
// the attempt budget with the agent mediating recovery when active.
// Crawling is re-entrant per query: a further Crawl call appends to the
// same run, and the state only leaves Crawling through Close.
func (o *Orchestrator) Crawl(ctx context.Context, queries []models.ProductQuery) (*models.CrawlRun, error) {
	if s := o.State(); s != StateReady && s != StateCrawling {
		return nil, fmt.Errorf("crawl called in state %s", s)
	}
	if len(queries) == 0 {
		queries = models.DefaultProducts
	}
	o.mu.Lock()
	o.state = StateCrawling
	o.run.Queries = append(o.run.Queries, queries...)
	o.mu.Unlock()

	for i, query := range queries {
		if i > 0 {
			o.interQueryPause()
		}
		if err := ctx.Err(); err != nil {
			o.appendOutcome(models.QueryOutcome{
				Query:      query,
				FailReason: err.Error(),
				FailKind:   "canceled",
			})
			continue
		}
		o.appendOutcome(o.crawlQuery(ctx, query))
	}

	o.mu.Lock()
	o.run.FinishedAt = time.Now()
	o.run.Usage = o.tracker.Summary()
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"run_id":  o.run.ID,
		"queries": len(queries),
		"results": o.run.ResultCount(),
	}).Info("Crawl finished")
	return o.run, nil
}

func (o *Orchestrator) appendOutcome(out models.QueryOutcome) {
	o.mu.Lock()
	o.run.Outcomes = append(o.run.Outcomes, out)
	o.mu.Unlock()
}

// crawlQuery produces the outcome slot for one query.
func (o *Orchestrator) crawlQuery(ctx context.Context, query models.ProductQuery) models.QueryOutcome {
	log := o.logger.WithField("query", query)
	var lastErr error

	for attempt := 1; attempt <= o.config.Crawler.MaxAttempts; attempt++ {
		o.waitForGate()

		results, err := o.extractor.Extract(ctx, o.sess, query)
		if err == nil {
			o.gate.RecordSuccess(o.run.Platform)
			o.rateLimitStreak = 0
			log.WithField("results", len(results)).Info("Query extracted")
			return models.QueryOutcome{Query: query, Results: results}
		}
		lastErr = err
		o.gate.RecordFailure(o.run.Platform, err)

		ee, recoverable := utils.AsExtractionError(err)
		if !recoverable {
			log.WithError(err).Error("Query failed with non-recoverable error")
			break
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"kind":    ee.Kind,
		}).Warn("Extraction failed")

		if attempt == o.config.Crawler.MaxAttempts {
			break
		}
		o.recover(ctx, ee)
	}

	return models.QueryOutcome{
		Query:      query,
		FailReason: lastErr.Error(),
		FailKind:   utils.FailKind(lastErr),
	}
}

// recover prepares the page for the next attempt after a recoverable
// extraction failure beyond attempt budget remains.
func (o *Orchestrator) recover(ctx context.Context, ee *utils.ExtractionError) {
	if ee.Kind == utils.ExtractRateLimited {
		o.rateLimitStreak++
		o.handleChallenge(ctx)
		o.sleep(scaledBackoff(o.rateLimitStreak))
	}

	if o.navigator != nil {
		goal := models.RecoverGoal(string(ee.Kind))
		if ee.Kind == utils.ExtractEmptyResult {
			goal = models.DismissBlockersGoal()
		}
		o.tracker.Record(string(goal.Kind))
		if err := o.navigator.Resolve(ctx, o.sess, goal); err != nil {
			o.handleAgentError(err)
		}
		return
	}

	// Deterministic recovery: shake off overlays and reload.
	o.sess.DismissOverlays()
	if ee.Kind != utils.ExtractRateLimited {
		o.sleep(o.config.Crawler.BackoffBase)
	}
	if err := o.sess.Reload(); err != nil {
		o.logger.WithError(err).Warn("Reload during recovery failed")
	}
}

// handleChallenge checks the page for a verification challenge and
// attempts an automated solve when one is configured.
func (o *Orchestrator) handleChallenge(ctx context.Context) {
	html, err := o.sess.HTML()
	if err != nil {
		return
	}
	challenge, found := captcha.DetectChallenge(html)
	if !found {
		return
	}
	o.solveChallenge(ctx, challenge)
}

// solveChallenge dispatches a detected challenge to the solver. GeeTest
// and reCAPTCHA have automated solves; slider challenges do not, the
// rate-limit backoff is the only remedy there.
func (o *Orchestrator) solveChallenge(ctx context.Context, challenge *captcha.Challenge) {
	o.logger.WithField("kind", challenge.Kind).Warn("Verification challenge detected")
	if challenge.SiteKey == "" || !o.solver.Enabled() {
		return
	}

	var err error
	switch challenge.Kind {
	case "geetest":
		_, err = o.solver.SolveGeeTest(ctx, challenge.SiteKey, "", o.sess.CurrentURL())
	case "recaptcha":
		_, err = o.solver.SolveRecaptcha(ctx, challenge.SiteKey, o.sess.CurrentURL())
	default:
		return
	}
	if err != nil {
		o.logger.WithError(err).Warn("Automated challenge solve failed")
		return
	}
	if err := o.sess.Reload(); err != nil {
		o.logger.WithError(err).Warn("Reload after challenge solve failed")
	}
}

// resolveWithRetry runs one navigation goal through the agent with
// exponential backoff, honoring the non-retryable auth failure.
func (o *Orchestrator) resolveWithRetry(ctx context.Context, goal models.NavigationGoal) error {
	var lastErr error
	for attempt := 1; attempt <= o.config.Crawler.MaxAttempts; attempt++ {
		if o.navigator == nil {
			break
		}
		o.tracker.Record(string(goal.Kind))
		err := o.navigator.Resolve(ctx, o.sess, goal)
		if err == nil {
			return nil
		}
		lastErr = err

		o.logger.WithFields(logrus.Fields{
			"goal":    goal.Describe(),
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Agent goal failed")

		if ae, ok := utils.AsAgentError(err); ok && !ae.Retryable() {
			o.handleAgentError(err)
			break
		}
		if attempt < o.config.Crawler.MaxAttempts {
			o.sleep(expBackoff(o.config.Crawler.BackoffBase, o.config.Crawler.BackoffMax, attempt))
		}
	}
	return lastErr
}

// handleAgentError downgrades the run to deterministic-only when the
// agent reports a non-retryable failure.
func (o *Orchestrator) handleAgentError(err error) {
	ae, ok := utils.AsAgentError(err)
	if !ok || ae.Retryable() {
		return
	}

	o.logger.WithField("provider", o.run.Provider).Warn("Agent credentials rejected, downgrading to deterministic-only crawl")
	o.navigator = nil
	o.mu.Lock()
	o.run.AIActive = false
	o.run.AIDowngraded = true
	o.mu.Unlock()
}

// interQueryPause sleeps the randomized politeness delay plus the
// scaled penalty when the storefront has been rate limiting us.
func (o *Orchestrator) interQueryPause() {
	delay := o.queryDelay()
	if o.rateLimitStreak > 0 {
		delay += scaledBackoff(o.rateLimitStreak)
	}
	o.sleep(delay)
}

// waitForGate blocks briefly while the throttle refuses requests. The
// gate is advisory pacing; after a bounded wait the attempt proceeds
// and the extraction layer's own rate-limit detection takes over.
func (o *Orchestrator) waitForGate() {
	for i := 0; i < 5; i++ {
		if o.gate.Allow(o.run.Platform) {
			return
		}
		o.sleep(2 * time.Second)
	}
}

// Close releases the browser session and persists the run. Idempotent.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateClosed {
		o.mu.Unlock()
		return nil
	}
	o.state = StateClosed
	if o.run.FinishedAt.IsZero() {
		o.run.FinishedAt = time.Now()
	}
	o.run.Usage = o.tracker.Summary()
	o.mu.Unlock()

	o.closeSession()

	var saveErr error
	if o.runs != nil {
		if err := o.runs.SaveRun(ctx, o.run); err != nil {
			o.logger.WithError(err).Error("Failed to persist crawl run")
			saveErr = err
		}
		if err := o.runs.Close(); err != nil {
			o.logger.WithError(err).Warn("Failed to close run store")
		}
	}

	o.logger.WithFields(logrus.Fields{
		"run_id":      o.run.ID,
		"duration":    utils.FormatDuration(o.run.FinishedAt.Sub(o.run.StartedAt)),
		"agent_calls": o.run.Usage.AgentCalls,
	}).Info("Crawl run closed")
	return saveErr
}

func (o *Orchestrator) closeSession() {
	if o.sess != nil {
		o.sessions.Release(o.sess)
		o.sess = nil
	}
}

// expBackoff returns base*2^(attempt-1) capped at max.
func expBackoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// scaledBackoff grows linearly with the rate-limit streak, capped at a
// minute.
func scaledBackoff(streak int) time.Duration {
	d := time.Duration(streak) * 5 * time.Second
	if d > time.Minute {
		return time.Minute
	}
	return d
}
