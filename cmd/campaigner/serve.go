package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/soundpost/campaigner/internal/api"
	"github.com/soundpost/campaigner/internal/audience"
	"github.com/soundpost/campaigner/internal/config"
	"github.com/soundpost/campaigner/internal/db"
	"github.com/soundpost/campaigner/internal/dispatch"
	"github.com/soundpost/campaigner/internal/dkim"
	"github.com/soundpost/campaigner/internal/durcache"
	"github.com/soundpost/campaigner/internal/mailer"
	"github.com/soundpost/campaigner/internal/metrics"
	"github.com/soundpost/campaigner/internal/render"
	"github.com/soundpost/campaigner/internal/repository"
	"github.com/soundpost/campaigner/internal/scheduler"
	"github.com/soundpost/campaigner/internal/tracking"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign service",
	RunE:  runServe,
}

var configFile string

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/campaigner/config.yaml", "Path to configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.Logging.Level),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.Logging.Level),
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	store, err := tracking.OpenStore(cfg.Database.TrackingPath)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	metrics.SetGlobal(m)

	transport := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		Timeout:  cfg.Email.SMTP.Timeout,
	}, logger)

	if cfg.Email.DKIM.Enabled {
		signer, err := dkim.NewSignerFromFile(cfg.Email.DKIM.KeyFile, cfg.Email.DKIM.Domain, cfg.Email.DKIM.Selector)
		if err != nil {
			return err
		}
		transport.SetDKIMSigner(signer)
		logger.Info("DKIM signing enabled",
			"domain", cfg.Email.DKIM.Domain,
			"selector", cfg.Email.DKIM.Selector,
		)
	}

	campaigns := repository.NewCampaignRepository(database.DB)
	renderer := render.NewRenderer(render.Options{
		SiteURL:         cfg.Tracking.SiteURL,
		TrackingBaseURL: cfg.Tracking.BaseURL,
		BrandName:       cfg.Branding.Name,
		LogoURL:         cfg.Branding.LogoURL,
	})
	person := &render.Personalizer{SiteURL: cfg.Tracking.SiteURL}
	dispatcher := dispatch.New(
		repository.NewSendRepository(database.DB), campaigns,
		renderer, person, transport, cfg.Email.SendDelay, logger,
	)
	resolver := audience.New(repository.NewAudienceRepository(database.DB), nil, audience.DefaultPolicy(), logger)
	pipeline := dispatch.NewPipeline(resolver, cfg.Safety.ExecutionContext(), dispatcher, logger)

	tracker := tracking.NewTracker(repository.NewEventRepository(database.DB), store, logger)

	var refresher *durcache.Refresher
	if cfg.Durations.WatchURL != "" {
		var cache *durcache.Cache
		if cfg.Redis.Enabled {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			cache = durcache.NewCache(rdb, cfg.Durations.CacheTTL)
		}
		refresher = durcache.NewRefresher(repository.NewVideoRepository(database.DB), cache, cfg.Durations.WatchURL, logger)
		refresher.SetBatching(durcache.DefaultBatchSize, cfg.Durations.BatchDelay)
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(campaigns, pipeline, cfg.Scheduler.Interval, logger)
		sched.Start()
		defer sched.Stop()
	}

	api.Version = version
	srv := api.NewServer(cfg, campaigns, pipeline, tracker, refresher, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
