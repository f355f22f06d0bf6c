package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/fileconverter/internal/api"
	cfgpkg "github.com/local/fileconverter/internal/config"
	"github.com/local/fileconverter/internal/converter"
	"github.com/local/fileconverter/internal/diskspace"
	"github.com/local/fileconverter/internal/filetype"
	logpkg "github.com/local/fileconverter/internal/logger"
	"github.com/local/fileconverter/internal/metrics"
	"github.com/local/fileconverter/internal/source"
	"github.com/local/fileconverter/internal/statuscheck"
	"github.com/local/fileconverter/internal/store"
	"github.com/local/fileconverter/internal/tempfile"
	"github.com/local/fileconverter/internal/web"
)

func main() {
	// Optional .env for local runs; deployments set the environment directly.
	_ = godotenv.Load()

	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Disk admission and temp lifecycle share one monitor over the temp
	// volume so every decision reads the same numbers.
	monitor := diskspace.NewMonitor(cfg.Storage.TempDir)
	thresholds := diskspace.ThresholdsFromGB(
		cfg.Storage.ConvertMinFreeGB, cfg.Storage.MergeMinFreeGB, cfg.Storage.PurgeBelowGB)
	gate := diskspace.NewGate(monitor, thresholds)

	tempMgr, err := tempfile.NewManager(cfg.Storage.TempDir, monitor, thresholds.PurgeBelow)
	if err != nil {
		log.Fatal().Err(err).Msg("temp root init failed")
	}

	janitor := tempfile.NewJanitor(tempMgr, cfg.Storage.JanitorInterval, cfg.Storage.StaleAge)
	janitor.Start()
	defer janitor.Stop()

	// Converters.
	office := converter.NewLibreOffice(cfg.Convert.Workers, cfg.Convert.Timeout)
	if version, err := office.CheckInstallation(); err != nil {
		log.Warn().Err(err).Msg("LibreOffice not found, document conversions will fail")
	} else {
		log.Info().Str("version", version).Msg("document converter ready")
	}
	images := converter.NewImageEncoder(cfg.Convert.JPEGQuality)
	raster := converter.NewPDFRenderer(cfg.Convert.RenderDPI, cfg.Convert.JPEGQuality)

	// Conversion history: shared via Redis when configured, process-local
	// otherwise. History must never block conversions, so a connection
	// failure downgrades instead of exiting.
	var history store.History
	var redisPing statuscheck.RedisPinger
	if cfg.Redis.URL != "" {
		rh, err := store.NewRedisHistory(cfg.Redis.URL, cfg.Redis.HistoryKey, cfg.Redis.HistoryMax)
		if err != nil {
			log.Warn().Err(err).Msg("redis history unavailable, using in-memory history")
			history = store.NewMemoryHistory(cfg.Redis.HistoryMax)
		} else {
			history = rh
			redisPing = rh
		}
	} else {
		history = store.NewMemoryHistory(cfg.Redis.HistoryMax)
	}
	defer history.Close()

	checker := statuscheck.New(statuscheck.Options{
		Redis:      redisPing,
		S3:         cfg.S3,
		TempRoot:   cfg.Storage.TempDir,
		Free:       monitor,
		Thresholds: thresholds,
	})

	srv := api.New(api.Dependencies{
		Gate:     gate,
		Temp:     tempMgr,
		Detector: filetype.New(),
		Office:   office,
		Images:   images,
		Raster:   raster,
		Merge:    converter.MergePDFs,
		Fetcher:  source.NewFetcher(cfg.S3, cfg.Storage.ChunkSizeMB),
		History:  history,
	}, cfg.Storage.ChunkSizeMB)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	dash := web.New(cfg.Web, checker, history, monitor, thresholds)
	dash.RegisterRoutes(mux)
	if dash.Enabled() {
		log.Info().Str("user", cfg.Web.Username).Msg("dashboard enabled at /web/")
	} else {
		log.Info().Msg("dashboard disabled, set WEB_USERNAME and WEB_PASSWORD_HASH to enable")
	}

	maxBody := int64(cfg.Storage.MaxUploadGB) << 30
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.Wrap(mux, maxBody),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("fileconverter listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete, in-flight conversions interrupted")
	}
	fmt.Println("shutdown complete")
}
