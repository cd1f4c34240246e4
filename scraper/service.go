// CLAUDE:SUMMARY Service orchestrator: wires store, site source, run control, schedule, strategies, sinks, browser and notifier; runs one site per goroutine.
// Package scraper is the supplier catalogue scraper.
//
// Site configurations (selectors, ordered extraction strategies, a schedule)
// are polled every minute. Each due site gets one run: a page is opened,
// the strategies are tried in priority order until one yields products,
// the products are capped and handed to the staging sinks, and the outcome
// is logged and notified.
//
//	poller → Launch → runctl.Start → orchestrate.Run → sinks → run_log + notify
//
// Usage:
//
//	svc, err := scraper.New(cfg, scraper.WithLogger(logger))
//	defer svc.Close()
//	svc.Start(ctx)
//	http.ListenAndServe(addr, svc.Handler())
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/supplyscrape/idgen"
	"github.com/hazyhaar/supplyscrape/scraper/internal/attach"
	"github.com/hazyhaar/supplyscrape/scraper/internal/browser"
	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
	"github.com/hazyhaar/supplyscrape/scraper/internal/notify"
	"github.com/hazyhaar/supplyscrape/scraper/internal/orchestrate"
	"github.com/hazyhaar/supplyscrape/scraper/internal/pace"
	"github.com/hazyhaar/supplyscrape/scraper/internal/page"
	"github.com/hazyhaar/supplyscrape/scraper/internal/runctl"
	"github.com/hazyhaar/supplyscrape/scraper/internal/schedule"
	"github.com/hazyhaar/supplyscrape/scraper/internal/sink"
	"github.com/hazyhaar/supplyscrape/scraper/internal/sitesrc"
	"github.com/hazyhaar/supplyscrape/scraper/internal/store"
	"github.com/hazyhaar/supplyscrape/scraper/internal/strategy"
)

var (
	// ErrUnknownSite is returned when a site ID has no configuration.
	ErrUnknownSite = errors.New("unknown site")
	// ErrRunActive is returned when a start is requested while the site is
	// running or paused.
	ErrRunActive = errors.New("a run is already active")
	// ErrReadOnlySites is returned by site writes when sites come from REST.
	ErrReadOnlySites = errors.New("sites are read from a remote source")
)

// SiteSource provides site configurations.
type SiteSource interface {
	ListActiveSites(ctx context.Context) ([]*model.Site, error)
	// GetSite returns nil, nil for an unknown ID.
	GetSite(ctx context.Context, id string) (*model.Site, error)
}

type options struct {
	logger   *slog.Logger
	opener   page.Opener
	pacer    pace.Pacer
	notifier notify.Notifier
	sites    SiteSource
	sinks    []sink.Sink
	now      func() time.Time
	runIDs   idgen.Generator
}

// Option customises New.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithOpener replaces the browser manager as the page source.
func WithOpener(op Opener) Option { return func(o *options) { o.opener = op } }

// WithPacer replaces the randomized pacer.
func WithPacer(p Pacer) Option { return func(o *options) { o.pacer = p } }

// WithSiteSource replaces the configured site source.
func WithSiteSource(src SiteSource) Option { return func(o *options) { o.sites = src } }

// WithSink adds a staging sink next to the configured ones.
func WithSink(s Sink) Option { return func(o *options) { o.sinks = append(o.sinks, s) } }

// WithClock sets the time source used for schedules and run records.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithRunIDs sets the run ID generator.
func WithRunIDs(gen func() string) Option { return func(o *options) { o.runIDs = gen } }

func withNotifier(n notify.Notifier) Option { return func(o *options) { o.notifier = n } }

// Service runs scheduled and manual scrapes.
type Service struct {
	cfg      *Config
	store    *store.Store
	sites    SiteSource
	ctl      *runctl.Controller
	eval     *schedule.Evaluator
	poller   *schedule.Poller
	orch     *orchestrate.Orchestrator
	stager   sink.Sink
	opener   page.Opener
	notifier notify.Notifier
	pacer    pace.Pacer
	sem      *semaphore.Weighted
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	base context.Context
	wg   sync.WaitGroup
}

// New creates a Service. It opens the SQLite database and builds the run
// pipeline; nothing runs until Start or StartSite.
func New(cfg *Config, opts ...Option) (*Service, error) {
	cfg.defaults()
	o := options{
		logger: slog.Default(),
		pacer:  pace.Jitter{},
		now:    time.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		store:  st,
		pacer:  o.pacer,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns)),
		logger: o.logger,
		now:    o.now,
		base:   context.Background(),
	}

	if err := s.build(&o); err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(o *options) error {
	cfg := s.cfg

	s.sites = o.sites
	if s.sites == nil {
		switch cfg.Sites.Source {
		case "store":
			s.sites = s.store
		case "rest":
			if cfg.Sites.URL == "" {
				return errors.New("scraper: sites.source rest needs sites.url")
			}
			s.sites = sitesrc.NewREST(sitesrc.Config{
				BaseURL: cfg.Sites.URL,
				APIKey:  cfg.Sites.APIKey,
				Table:   cfg.Sites.Table,
				Logger:  s.logger,
			})
		default:
			return fmt.Errorf("scraper: unknown sites.source %q", cfg.Sites.Source)
		}
	}

	router := sink.NewRouter(s.logger)
	if !cfg.Sinks.DisableStore {
		router.Add(sink.NewStore(s.store))
	}
	if cfg.Sinks.Stdout {
		router.Add(sink.NewStdout(os.Stdout))
	}
	if wh := cfg.Sinks.Webhook; wh.URL != "" {
		whOpts := []sink.WebhookOption{sink.WithWebhookLogger(s.logger)}
		if wh.Retries > 0 {
			whOpts = append(whOpts, sink.WithWebhookRetries(wh.Retries))
		}
		if wh.Backoff > 0 {
			whOpts = append(whOpts, sink.WithWebhookBackoff(wh.Backoff))
		}
		for k, v := range wh.Headers {
			whOpts = append(whOpts, sink.WithWebhookHeader(k, v))
		}
		router.Add(sink.NewWebhook(wh.URL, whOpts...))
	}
	for _, extra := range o.sinks {
		router.Add(extra)
	}
	if router.Len() == 0 {
		s.logger.Warn("scraper: no staging sink configured, products will be dropped")
	}
	s.stager = router
	if cfg.Attachments.Enabled {
		s.stager = attach.New(attach.Config{
			MaxBytes:      cfg.Attachments.MaxBytes,
			MaxPerProduct: cfg.Attachments.MaxPerProduct,
			Timeout:       cfg.Attachments.Timeout,
			AllowPrivate:  cfg.Attachments.AllowPrivate,
			Logger:        s.logger,
		}).Wrap(router)
	}

	s.opener = o.opener
	if s.opener == nil {
		mode, err := browser.ParseMode(cfg.Browser.Mode)
		if err != nil {
			return err
		}
		static := []page.Option{page.WithLogger(s.logger)}
		if cfg.Browser.UserAgent != "" {
			static = append(static, page.WithUserAgent(cfg.Browser.UserAgent))
		}
		s.opener = browser.NewManager(browser.Config{
			Mode:             mode,
			RemoteURL:        cfg.Browser.RemoteURL,
			MemoryLimit:      cfg.Browser.MemoryLimit,
			RecycleInterval:  cfg.Browser.RecycleInterval,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			NavTimeout:       cfg.Browser.NavTimeout,
			XvfbDisplay:      cfg.Browser.XvfbDisplay,
			StaticOptions:    static,
			Logger:           s.logger,
		})
	}

	s.notifier = o.notifier
	if s.notifier == nil {
		var n notify.Multi
		n = append(n, notify.Log{Logger: s.logger})
		if cfg.Telegram.Token != "" {
			tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
			if err != nil {
				return err
			}
			tg.OnlyProblems = cfg.Telegram.OnlyProblems
			n = append(n, tg)
		}
		s.notifier = n
	}

	ctlOpts := []runctl.Option{
		runctl.WithLogger(s.logger),
		runctl.WithClock(s.now),
		runctl.WithOnChange(s.onChange),
	}
	if o.runIDs != nil {
		ctlOpts = append(ctlOpts, runctl.WithIDGenerator(o.runIDs))
	}
	s.ctl = runctl.New(ctlOpts...)

	s.eval = schedule.NewEvaluator(
		schedule.WithDedupWindow(cfg.DedupWindow),
		schedule.WithLogger(s.logger),
	)
	s.poller = schedule.NewPoller(s.eval, s.sites.ListActiveSites,
		func(ctx context.Context, site *model.Site) { s.Launch(ctx, site) },
		schedule.PollerConfig{Interval: cfg.PollInterval, Now: s.now}, s.logger)

	registry := strategy.NewRegistry(strategy.Env{
		Logger:      s.logger,
		Pacer:       s.pacer,
		FamilyPause: cfg.Pacing.Family,
		Now:         s.now,
	})
	s.orch = orchestrate.New(orchestrate.Config{
		PreRun:  cfg.Pacing.PreRun,
		Product: cfg.Pacing.Product,
		Logger:  s.logger,
	}, registry, s.stager, s.pacer)
	return nil
}

// Start launches the schedule poller. Runs started from now on, scheduled
// or manual, are cancelled when ctx is.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	go s.poller.Run(ctx)
	s.logger.Info("scraper: started",
		"db", s.cfg.DBPath,
		"sites", s.cfg.Sites.Source,
		"poll_interval", s.cfg.PollInterval,
		"max_concurrent_runs", s.cfg.MaxConcurrentRuns)
}

// Wait blocks until every launched run has finished, cooldown included.
// A site's next run cannot start before its previous run got that far.
func (s *Service) Wait() { s.wg.Wait() }

// Close releases the sinks, the browser and the database. Call Wait first.
func (s *Service) Close() error {
	var errs []error
	if err := s.stager.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := s.opener.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) baseCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// Launch starts a run of site in the background. It returns false when the
// site already has an active run. The run's context derives from ctx.
func (s *Service) Launch(ctx context.Context, site *model.Site) (string, bool) {
	run, ok := s.ctl.Start(ctx, site.ID)
	if !ok {
		return "", false
	}
	s.eval.MarkStarted(site.ID, s.now())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(run, site.Clone(), true)
	}()
	return run.ID, true
}

// RunOnce runs site id in the caller's goroutine and returns its record.
// There is no cooldown after the run.
func (s *Service) RunOnce(ctx context.Context, id string) (*model.RunRecord, error) {
	site, err := s.site(ctx, id)
	if err != nil {
		return nil, err
	}
	run, ok := s.ctl.Start(ctx, site.ID)
	if !ok {
		return nil, fmt.Errorf("scraper: site %s: %w", id, ErrRunActive)
	}
	s.eval.MarkStarted(site.ID, s.now())
	s.wg.Add(1)
	defer s.wg.Done()
	return s.execute(run, site.Clone(), false), nil
}

// execute drives one run to its end and persists the outcome.
func (s *Service) execute(run *runctl.Run, site *model.Site, cooldown bool) *model.RunRecord {
	defer s.ctl.Done(run)
	dbctx := context.WithoutCancel(run.Context())
	rec := &model.RunRecord{
		ID:        run.ID,
		SiteID:    site.ID,
		State:     model.StateRunning,
		StartedAt: run.StartedAt,
	}
	if err := s.store.InsertRun(dbctx, rec); err != nil {
		s.logger.Warn("scraper: insert run", "site_id", site.ID, "run_id", run.ID, "error", err)
	}

	if err := s.sem.Acquire(run.Context(), 1); err != nil {
		s.finish(dbctx, run, site, rec, nil, fmt.Errorf("scraper: waiting for a run slot: %w", err))
		return rec
	}
	defer s.sem.Release(1)

	res, err := s.runSite(run, site)
	s.finish(dbctx, run, site, rec, res, err)

	if cooldown {
		_ = s.pacer.Pause(s.baseCtx(), s.cfg.Pacing.PostRun)
	}
	return rec
}

func (s *Service) runSite(run *runctl.Run, site *model.Site) (res *orchestrate.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scraper: run panicked",
				"site_id", site.ID, "run_id", run.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("scraper: panic: %v", r)
		}
	}()

	ctx := run.Context()
	p, err := s.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("scraper: open page: %w", err)
	}
	defer p.Close()

	return s.orch.Run(ctx, run.ID, run, site, p)
}

func (s *Service) finish(ctx context.Context, run *runctl.Run, site *model.Site, rec *model.RunRecord, res *orchestrate.Result, runErr error) {
	if res != nil {
		rec.Strategy = res.Strategy
		rec.Found, rec.Staged, rec.Failed = res.Found, res.Staged, res.Failed
	}

	var msg string
	var marked bool
	if runErr == nil {
		msg = summary(res)
		marked = s.ctl.MarkCompleted(site.ID, run.ID, msg)
		rec.State = model.StateCompleted
	} else {
		msg = runErr.Error()
		marked = s.ctl.MarkError(site.ID, run.ID, msg)
		rec.State = model.StateError
	}
	rec.Message = msg
	if !marked {
		// Only Stop takes a run out of the active states behind its back.
		rec.State = model.StateStopped
		rec.Message = "stopped by operator"
		if st := s.ctl.Status(site.ID); st.RunID == run.ID {
			rec.Message = st.Message
		}
	}

	if err := s.store.FinishRun(ctx, rec); err != nil {
		s.logger.Warn("scraper: finish run", "site_id", site.ID, "run_id", run.ID, "error", err)
	}
	if err := s.notifier.RunFinished(ctx, site, rec); err != nil {
		s.logger.Warn("scraper: notify", "site_id", site.ID, "run_id", run.ID, "error", err)
	}
}

func summary(res *orchestrate.Result) string {
	if res == nil || res.Found == 0 {
		return "no products found"
	}
	return fmt.Sprintf("%s: staged %d of %d", res.Strategy, res.Staged, res.Found)
}

// onChange mirrors pause, resume and stop into the run log. Terminal
// outcomes are written by finish.
func (s *Service) onChange(st model.RunStatus) {
	if st.RunID == "" {
		return
	}
	switch st.State {
	case model.StateRunning, model.StatePaused, model.StateStopped:
	default:
		return
	}
	if _, err := s.store.SetRunState(context.Background(), st.RunID, st.State, st.Message); err != nil {
		s.logger.Warn("scraper: run state", "site_id", st.SiteID, "run_id", st.RunID, "error", err)
	}
}

func (s *Service) site(ctx context.Context, id string) (*model.Site, error) {
	site, err := s.sites.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, fmt.Errorf("scraper: site %s: %w", id, ErrUnknownSite)
	}
	return site, nil
}

// --- run control ---

// StartSite launches a manual run of site id, regardless of its schedule
// and active flag. It returns the new run ID.
func (s *Service) StartSite(ctx context.Context, id string) (string, error) {
	site, err := s.site(ctx, id)
	if err != nil {
		return "", err
	}
	runID, ok := s.Launch(s.baseCtx(), site)
	if !ok {
		return "", fmt.Errorf("scraper: site %s: %w", id, ErrRunActive)
	}
	return runID, nil
}

// PauseSite pauses a running site. It reports whether the state changed.
func (s *Service) PauseSite(id string) bool { return s.ctl.Pause(id) }

// ResumeSite resumes a paused site.
func (s *Service) ResumeSite(id string) bool { return s.ctl.Resume(id) }

// StopSite cancels a running or paused site.
func (s *Service) StopSite(id string) bool { return s.ctl.Stop(id) }

// Status returns the run state of site id. Unknown sites are idle.
func (s *Service) Status(id string) model.RunStatus { return s.ctl.Status(id) }

// Statuses returns the state of every site that has run since startup.
func (s *Service) Statuses() []model.RunStatus { return s.ctl.Snapshot() }

// --- sites, runs, staging ---

// Sites lists site configurations. With the local store every site is
// listed; a remote source only exposes active ones.
func (s *Service) Sites(ctx context.Context) ([]*model.Site, error) {
	if s.sites == SiteSource(s.store) {
		return s.store.ListSites(ctx, false)
	}
	return s.sites.ListActiveSites(ctx)
}

// Site returns one site configuration, or nil.
func (s *Service) Site(ctx context.Context, id string) (*model.Site, error) {
	return s.sites.GetSite(ctx, id)
}

// PutSite validates and stores a site configuration.
func (s *Service) PutSite(ctx context.Context, site *model.Site) error {
	if s.sites != SiteSource(s.store) {
		return ErrReadOnlySites
	}
	return s.store.UpsertSite(ctx, site)
}

// SetSiteActive toggles scheduling for a stored site.
func (s *Service) SetSiteActive(ctx context.Context, id string, active bool) error {
	if s.sites != SiteSource(s.store) {
		return ErrReadOnlySites
	}
	ok, err := s.store.SetSiteActive(ctx, id, active)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("scraper: site %s: %w", id, ErrUnknownSite)
	}
	return nil
}

// ImportSites upserts sites into the local store, all or nothing, and
// returns how many were stored.
func (s *Service) ImportSites(ctx context.Context, sites []*model.Site) (int, error) {
	if err := s.store.ImportSites(ctx, sites); err != nil {
		return 0, err
	}
	return len(sites), nil
}

// Runs lists recent run records, newest first. Empty siteID lists all.
func (s *Service) Runs(ctx context.Context, siteID string, limit int) ([]*model.RunRecord, error) {
	return s.store.ListRuns(ctx, siteID, limit)
}

// RunRecord returns one run record, or nil.
func (s *Service) RunRecord(ctx context.Context, id string) (*model.RunRecord, error) {
	return s.store.GetRun(ctx, id)
}

// Staged lists staged products of a site, newest first.
func (s *Service) Staged(ctx context.Context, siteID string, limit int) ([]*store.StagedProduct, error) {
	return s.store.ListStaging(ctx, siteID, limit)
}

// StagedByRun lists the products staged by one run in staging order.
func (s *Service) StagedByRun(ctx context.Context, runID string) ([]*store.StagedProduct, error) {
	return s.store.ListStagingByRun(ctx, runID)
}
