package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/courtside-labs/crm-sync/pkg/common/config"
	"github.com/courtside-labs/crm-sync/pkg/common/database"
	"github.com/courtside-labs/crm-sync/pkg/common/kafka"
	"github.com/courtside-labs/crm-sync/pkg/common/logger"
	"github.com/courtside-labs/crm-sync/pkg/extractor"
	"github.com/courtside-labs/crm-sync/pkg/job"
	"github.com/courtside-labs/crm-sync/pkg/retry"
	"github.com/courtside-labs/crm-sync/pkg/schema"
	"github.com/courtside-labs/crm-sync/pkg/sink"
	"github.com/courtside-labs/crm-sync/pkg/transformer"
)

func main() {
	logger.Init()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Log.WithError(err).WithField("timezone", cfg.Timezone).Fatal("Unknown timezone")
	}

	for _, dir := range []string{cfg.DownloadFolder, cfg.ScreenshotFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Log.WithError(err).WithField("dir", dir).Fatal("Failed to create working directory")
		}
	}

	mapping, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load schema mapping")
	}
	if err := mapping.Validate(); err != nil {
		logger.Log.WithError(err).Fatal("Incomplete schema mapping")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dataSink, err := buildSink(ctx, cfg, loc)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialise sink")
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	agent := extractor.NewAgent(extractor.Config{
		LoginURL:      cfg.BaseURL,
		Username:      cfg.Login,
		Password:      cfg.Password,
		ScreenshotDir: cfg.ScreenshotFolder,
		Debug:         cfg.Debug,
		Timeouts: extractor.Timeouts{
			Navigation:   cfg.NavigationTimeout,
			Selector:     cfg.SelectorTimeout,
			ExportMarker: cfg.ExportMarkerTimeout,
			Download:     cfg.DownloadTimeout,
			Settle:       cfg.SettleDelay,
		},
	}, func(ctx context.Context) (extractor.Browser, error) {
		return extractor.NewChromeBrowser(ctx, cfg.Headless, cfg.DownloadFolder)
	})

	runner := job.NewRunner(
		agent,
		extractor.NewLocator(cfg.DownloadFolder),
		transformer.New(mapping, loc),
		dataSink,
		producer,
		retry.Policy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay},
	)

	lock := job.NewRunLock(database.GetRedis(cfg), cfg.JobLockTTL)

	router := mux.NewRouter()
	router.Use(job.Logging, job.Recovery)
	job.NewHTTPHandler(runner, lock).Register(router)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
		// WriteTimeout bounds the synchronous trigger request, which spans
		// a full extraction cycle.
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
			"sink": dataSink.Name(),
		}).Info("crm-sync started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down crm-sync...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("Failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("Failed to close redis")
	}

	logger.Log.Info("crm-sync stopped")
}

func buildSink(ctx context.Context, cfg *config.Config, loc *time.Location) (sink.Sink, error) {
	switch cfg.SinkKind {
	case "sheets":
		return sink.NewSheetsSink(ctx, cfg.SheetsCredentialsFile, cfg.SheetsSpreadsheetID, cfg.SheetsRange, loc)
	default:
		db, err := database.GetPostgres(cfg)
		if err != nil {
			return nil, err
		}
		pg := sink.NewPostgresSink(db, loc)
		if err := pg.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate customers table: %w", err)
		}
		return pg, nil
	}
}
