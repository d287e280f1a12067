package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sirupsen/logrus"

	"selfpm/internal"
	"selfpm/pkg/auth"
	"selfpm/pkg/core"
	"selfpm/pkg/scm"
	"selfpm/pkg/storage/projects"
	"selfpm/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	driver := flag.String("driver", "", "Override subscriber driver ("+strings.Join(worker.SubscriberDrivers(), "|")+")")
	concurrency := flag.Int("concurrency", 5, "Messages handled in parallel")
	acknowledge := flag.Bool("acknowledge", false, "Comment on newly opened issues")
	flag.Parse()

	logger := internal.NewLogger("worker")
	if err := internal.LoadEnv(".env"); err != nil {
		logger.WithError(err).Fatal("load env")
	}
	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	if err := internal.ConfigureLogging(cfg.Logging); err != nil {
		logger.WithError(err).Fatal("configure logging")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	subCfg, err := worker.LoadSubscriberConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load subscriber config")
	}
	if *driver != "" {
		subCfg.Driver = *driver
		subCfg.Drivers = nil
	}
	topics, err := worker.LoadTopicsFromConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load topics")
	}
	if len(topics) == 0 {
		logger.Fatal("no rule emits a topic")
	}

	store, err := projects.Open(projects.Config{
		Driver:      cfg.Storage.Driver,
		DSN:         cfg.Storage.DSN,
		AutoMigrate: cfg.Storage.AutoMigrate,
	})
	if err != nil {
		logger.WithError(err).Fatal("open storage")
	}
	defer store.Close()
	factory := scm.NewFactory(auth.NewResolver(authConfig(cfg.AppConfig)))
	projectCore := core.New(store, factory, nil, logger)

	sub, err := worker.BuildSubscriber(subCfg)
	if err != nil {
		logger.WithError(err).Fatal("subscriber")
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logger.WithError(err).Warn("subscriber close")
		}
	}()

	wk := worker.New(
		worker.WithSubscriber(sub),
		worker.WithTopics(topics...),
		worker.WithConcurrency(*concurrency),
		worker.WithLogger(logger),
		worker.WithRetry(worker.NewMaxAttempts(2)),
		worker.WithProjects(projectCore),
		worker.WithMiddleware(worker.MiddlewareFromWatermill(middleware.Recoverer)),
		worker.WithListener(worker.Listener{
			OnStart: func(context.Context) { logger.WithField("topics", topics).Info("worker started") },
			OnExit:  func(context.Context) { logger.Info("worker stopped") },
			OnMessageFinish: func(_ context.Context, evt *worker.Event, err error) {
				logger.WithFields(logrus.Fields{
					"topic":   evt.Topic,
					"type":    evt.Type,
					"project": evt.Project,
				}).WithError(err).Debug("message finished")
			},
		}),
	)

	h := &handlers{logger: logger, acknowledge: *acknowledge}
	wk.HandleType("newIssue", h.newIssue)
	wk.HandleType("reopened", h.reopened)
	wk.HandleType("assignedTasks", h.assignedTasks)

	if err := wk.Run(ctx); err != nil {
		logger.WithError(err).Fatal("worker")
	}
}

func authConfig(cfg internal.AppConfig) auth.Config {
	return auth.Config{
		GitHub:    auth.ProviderConfig{Token: cfg.Providers.GitHub.Token, BaseURL: cfg.Providers.GitHub.BaseURL},
		GitLab:    auth.ProviderConfig{Token: cfg.Providers.GitLab.Token, BaseURL: cfg.Providers.GitLab.BaseURL},
		Bitbucket: auth.ProviderConfig{Token: cfg.Providers.Bitbucket.Token, BaseURL: cfg.Providers.Bitbucket.BaseURL},
	}
}
