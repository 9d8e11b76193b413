package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	appConfig "playset/config"
	"playset/controller"
	"playset/database"
	"playset/handlers"
	"playset/loader"
	"playset/logging"
	"playset/metadata"
	"playset/playset"
	"playset/sentry"
)

func main() {
	envErr := godotenv.Load()
	appConfig.NewConfig()
	logging.Setup(appConfig.Config.Options.LogLevel, os.Stderr)
	if envErr != nil {
		log.Debugf("no .env file loaded: %v", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg := appConfig.Config

	if err := sentry.Init(cfg.Sentry.DSN, cfg.Sentry.Release); err != nil {
		log.Warnf("sentry init failed: %v", err)
	}
	defer sentry.Flush(2 * time.Second)
	if cfg.Sentry.IsEnabled() && sentry.GetSentryClient() != nil {
		sentry.SetContext("library", map[string]interface{}{
			"items_dir":   cfg.Library.ItemsDir,
			"subsets_dir": cfg.Library.SubsetsDir,
		})
	}

	db, err := database.New(cfg.Library.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	policy, err := playset.ParseLoadPolicy(cfg.Library.LoadPolicy)
	if err != nil {
		return err
	}

	l := loader.NewLoader(playset.LoadOptions{
		ItemsDir:   cfg.Library.ItemsDir,
		SubsetsDir: cfg.Library.SubsetsDir,
		Extractor:  metadata.NewCachedExtractor(db, metadata.NewTagExtractor()),
		Policy:     policy,
		Workers:    cfg.Library.ExtractWorkers,
		Memo:       cfg.Library.FlattenCache,
	}, db)
	c := controller.NewController(l)
	c.Start(ctx)
	defer l.Wait()
	defer l.Cancel()

	if cfg.Options.LogLevel != "debug" && cfg.Options.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Sentry.IsEnabled() {
		router.Use(sentry.GetSentryGin())
	}
	handlers.NewManager(c, db).Register(router)

	server := &http.Server{
		Addr:    ":" + cfg.Options.Port,
		Handler: router,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("Starting server on :%s", cfg.Options.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
