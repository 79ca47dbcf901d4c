package daemon

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"mira/internal/applier"
	"mira/internal/calendar"
	"mira/internal/chat"
	"mira/internal/command"
	"mira/internal/config"
	"mira/internal/credentials"
	"mira/internal/ingest"
	"mira/internal/llm"
	"mira/internal/logging"
	"mira/internal/metrics"
	"mira/internal/model"
	"mira/internal/parser"
	"mira/internal/planner"
	"mira/internal/provider"
	"mira/internal/rules"
	"mira/internal/store"
	"mira/internal/syncsched"
)

// Daemon owns the long-running agent: the per-account sync loop, the chat
// gateway, the daily replan cron, and the metrics endpoint. Everything shuts
// down together when the context ends.
type Daemon struct {
	cfg      config.Config
	location *time.Location
	store    *store.Store
	metrics  *metrics.Metrics
	calendar calendar.Store

	coordinator *ingest.Coordinator
	scheduler   *syncsched.Scheduler
	applier     *applier.Service
	commands    *command.Service
	gateway     *chat.Gateway
	logger      logging.Logger
}

// Options are the injection points the CLI and tests use.
type Options struct {
	// Calendar overrides the default in-process store, for wiring a real
	// platform backend.
	Calendar calendar.Store

	// Transport carries chat messages. Nil disables the chat surface.
	Transport chat.Transport

	// Credentials overrides the default keystore+environment chain.
	Credentials credentials.Store

	// Extractor overrides the default Ollama client.
	Extractor llm.Client
}

// New wires the full agent from configuration and the enabled accounts in
// the database.
func New(ctx context.Context, cfg config.Config, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	m := metrics.New()
	logger := logging.NewComponentLogger("Daemon")

	cal := opts.Calendar
	if cal == nil {
		cal = calendar.NewMemoryStore(cfg.ManagedCalendarName)
	}
	if err := cal.EnsureManagedCalendar(ctx, cfg.ManagedCalendarName); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("managed calendar %q: %w", cfg.ManagedCalendarName, err)
	}

	creds := opts.Credentials
	if creds == nil {
		creds = credentials.Chain{
			credentials.NewFileStore(filepath.Join(filepath.Dir(cfg.DatabasePath), "credentials.json")),
			credentials.NewEnvStore(""),
		}
	}

	extractor := opts.Extractor
	if extractor == nil {
		ollama := llm.NewOllamaClient(cfg.LLM, location, logging.NewComponentLogger("LLM"))
		cached, err := llm.NewCachingClient(ollama, cfg.LLM.CacheSize)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("extraction cache: %w", err)
		}
		extractor = cached
	}

	d := &Daemon{
		cfg:      cfg,
		location: location,
		store:    st,
		metrics:  m,
		calendar: cal,
		logger:   logger,
	}

	d.applier = applier.New(st, planner.New(logging.NewComponentLogger("Planner")), cal, cfg, m, logging.NewComponentLogger("Applier"))
	d.commands = command.New(st, rules.New(), cal, cfg, m, logging.NewComponentLogger("Command"))

	services, err := d.buildSyncServices(ctx, creds, extractor)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	d.coordinator = ingest.NewCoordinator(services, func(ctx context.Context) {
		if _, err := d.applier.Regenerate(ctx, time.Now().In(d.location), "new_update"); err != nil {
			d.logger.Error("replan after new updates: %v", err)
		}
	}, logging.NewComponentLogger("Ingest"))
	d.scheduler = syncsched.New(cfg.Sync, logging.NewComponentLogger("SyncSched"))

	if opts.Transport != nil {
		gw, err := chat.NewGateway(opts.Transport, d.commands, cfg.ChatAckDeadlineSeconds, logging.NewComponentLogger("Chat"))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		d.gateway = gw
	}
	return d, nil
}

// buildSyncServices creates one ingest service per enabled account.
func (d *Daemon) buildSyncServices(ctx context.Context, creds credentials.Store, extractor llm.Client) ([]*ingest.Service, error) {
	accounts, err := d.store.Accounts.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	httpClient := &http.Client{Timeout: time.Duration(d.cfg.ProviderTimeoutSeconds) * time.Second}
	services := make([]*ingest.Service, 0, len(accounts))
	for _, account := range accounts {
		account := account
		tokens := provider.TokenSource(func(ctx context.Context) (string, error) {
			return creds.Token(ctx, account.AccountID)
		})

		var client provider.Client
		switch account.Provider {
		case model.ProviderGmail:
			client = provider.NewGmailClient(account.AccountID, tokens, httpClient, logging.NewComponentLogger("Gmail"))
		case model.ProviderOutlook:
			client = provider.NewOutlookClient(account.AccountID, tokens, httpClient, logging.NewComponentLogger("Outlook"))
		default:
			return nil, fmt.Errorf("account %s: unknown provider %q", account.AccountID, account.Provider)
		}

		pipeline := parser.New(d.cfg.TrustedSenders, account.Provider.DefaultSource())
		services = append(services, ingest.NewService(
			account, client, pipeline, rules.New(), extractor,
			d.store, d.cfg.ConfidenceThreshold, d.metrics,
			logging.NewComponentLogger("Ingest"),
		))
	}
	d.logger.Info("wired %d enabled account(s)", len(services))
	return services, nil
}

// Run starts every loop and blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		d.scheduler.Run(gctx, func(tctx context.Context) (int, error) {
			res, err := d.coordinator.SyncAll(tctx)
			return res.Stored, err
		})
		return nil
	})

	replanCron := cron.New()
	if _, err := replanCron.AddFunc(d.cfg.DailyReplanSchedule, func() {
		now := time.Now().In(d.location)
		if _, err := d.applier.Regenerate(context.Background(), now, "daily"); err != nil {
			d.logger.Error("daily replan: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("daily replan schedule %q: %w", d.cfg.DailyReplanSchedule, err)
	}
	replanCron.Start()
	defer func() { <-replanCron.Stop().Done() }()

	if d.gateway != nil {
		group.Go(func() error {
			err := d.gateway.Run(gctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	if d.cfg.MetricsAddr != "" {
		server := &http.Server{Addr: d.cfg.MetricsAddr, Handler: d.metrics.Handler()}
		group.Go(func() error {
			d.logger.Info("metrics listening on %s", d.cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	d.logger.Info("daemon running")
	err := group.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// SyncOnce runs one coordinated sync pass, for the one-shot CLI path.
func (d *Daemon) SyncOnce(ctx context.Context) (ingest.TickResult, error) {
	return d.coordinator.SyncAll(ctx)
}

// Regenerate forces a replan now.
func (d *Daemon) Regenerate(ctx context.Context, trigger string) (applier.Outcome, error) {
	return d.applier.Regenerate(ctx, time.Now().In(d.location), trigger)
}

// HandleCommand routes one chat line without a transport.
func (d *Daemon) HandleCommand(ctx context.Context, text string) (command.Response, error) {
	return d.commands.Handle(ctx, text, time.Now().In(d.location))
}

// HealthCheck verifies the database answers queries.
func (d *Daemon) HealthCheck(ctx context.Context) error {
	if _, err := d.store.Revisions.LatestID(ctx); err != nil {
		return fmt.Errorf("database not answering: %w", err)
	}
	return nil
}

// Close releases the daemon's resources.
func (d *Daemon) Close() error {
	return d.store.Close()
}
