package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"selfpm/internal"
	"selfpm/pkg/api"
	"selfpm/pkg/auth"
	"selfpm/pkg/core"
	"selfpm/pkg/review"
	"selfpm/pkg/scm"
	"selfpm/pkg/storage/projects"
	"selfpm/pkg/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	if err := internal.LoadEnv(*envFile); err != nil {
		logger.WithError(err).Fatal("load env")
	}
	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	if err := internal.ConfigureLogging(config.Logging); err != nil {
		logger.WithError(err).Fatal("configure logging")
	}

	ruleEngine, err := internal.NewRuleEngine(config.RulesConfig())
	if err != nil {
		logger.WithError(err).Fatal("compile rules")
	}

	publisher, err := internal.NewPublisher(config.Watermill)
	if err != nil {
		logger.WithError(err).Fatal("publisher")
	}
	defer publisher.Close()

	store, err := projects.Open(projects.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		AutoMigrate: config.Storage.AutoMigrate,
	})
	if err != nil {
		logger.WithError(err).Fatal("open storage")
	}
	defer store.Close()

	dispatcher := internal.NewDispatcher(ruleEngine, publisher, internal.NewLogger("dispatch"))
	factory := scm.NewFactory(auth.NewResolver(authConfig(config.AppConfig)))
	projectCore := core.New(store, factory, dispatcher, internal.NewLogger("core"))

	reviewer := review.NewReviewer(projectCore,
		review.WithLogger(internal.NewLogger("review")),
		review.WithListener(metricsListener()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopReview, err := startReview(ctx, config.Review, reviewer)
	if err != nil {
		logger.WithError(err).Fatal("review trigger")
	}

	mux := http.NewServeMux()
	if config.Providers.GitHub.Enabled {
		mux.Handle(config.Providers.GitHub.Path, webhook.NewGitHubHandler(
			config.Providers.GitHub.Secret,
			projectCore,
			internal.NewLogger("webhook"),
			config.Server.MaxBodyBytes,
			config.Server.DebugEvents,
		))
		logger.WithField("path", config.Providers.GitHub.Path).Info("github webhook enabled")
	}
	if config.Providers.GitLab.Enabled || config.Providers.Bitbucket.Enabled {
		logger.Warn("gitlab and bitbucket webhooks are not served; their projects are reviewed only")
	}
	mux.Handle("/api/projects", &api.ProjectsHandler{Store: store, Logger: internal.NewLogger("api")})
	mux.Handle("/api/review", &api.ReviewHandler{Reviewer: reviewer, Logger: internal.NewLogger("api")})
	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, internal.MetricsHandler())
	}

	var handler http.Handler = mux
	if config.Server.RateLimitRPS > 0 {
		handler = internal.NewRateLimitHandler(handler, config.Server.RateLimitRPS, config.Server.RateLimitBurst, 10*time.Minute)
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	go func() {
		logger.WithField("addr", addr).Info("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("listen")
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown")
	}
	stopReview(shutdownCtx)
}

func authConfig(cfg internal.AppConfig) auth.Config {
	return auth.Config{
		GitHub:    auth.ProviderConfig{Token: cfg.Providers.GitHub.Token, BaseURL: cfg.Providers.GitHub.BaseURL},
		GitLab:    auth.ProviderConfig{Token: cfg.Providers.GitLab.Token, BaseURL: cfg.Providers.GitLab.BaseURL},
		Bitbucket: auth.ProviderConfig{Token: cfg.Providers.Bitbucket.Token, BaseURL: cfg.Providers.Bitbucket.BaseURL},
	}
}

func metricsListener() review.Listener {
	return review.Listener{
		OnProjectFailure: func(context.Context, review.Outcome) { internal.IncProjectFailure() },
		OnSweepSkipped:   func(context.Context) { internal.IncSweepSkipped() },
		OnSweepFinish: func(_ context.Context, report review.Report) {
			internal.ObserveSweep(report.Finished.Sub(report.Started).Seconds(), len(report.Failures()))
		},
		OnSweepAborted: func(_ context.Context, report review.Report, _ error) {
			internal.ObserveSweepAborted(report.Finished.Sub(report.Started).Seconds())
		},
	}
}

// startReview starts the configured sweep trigger and returns its stop func.
func startReview(ctx context.Context, cfg internal.ReviewConfig, reviewer *review.Reviewer) (func(context.Context), error) {
	logger := internal.NewLogger("review")
	if !cfg.Enabled {
		logger.Info("periodic review disabled")
		return func(context.Context) {}, nil
	}

	switch cfg.Trigger {
	case "river":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		trigger, err := review.NewRiverTrigger(pool, reviewer, review.RiverConfig{
			Queue:      cfg.Queue,
			Period:     cfg.Period,
			MaxWorkers: cfg.MaxWorkers,
			Logger:     logger,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := trigger.Start(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return func(stopCtx context.Context) {
			if err := trigger.Stop(stopCtx); err != nil {
				logger.WithError(err).Warn("river stop")
			}
			pool.Close()
		}, nil
	default:
		scheduler, err := review.NewScheduler(reviewer, cfg.Period, logger)
		if err != nil {
			return nil, err
		}
		scheduler.Start(ctx)
		return func(context.Context) { scheduler.Stop() }, nil
	}
}
