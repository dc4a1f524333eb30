package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbonduro/switchmap/internal/canvas"
	"github.com/vbonduro/switchmap/internal/config"
	"github.com/vbonduro/switchmap/internal/db"
	"github.com/vbonduro/switchmap/internal/domain"
	"github.com/vbonduro/switchmap/internal/drawing"
	"github.com/vbonduro/switchmap/internal/localcache"
	"github.com/vbonduro/switchmap/internal/logging"
	"github.com/vbonduro/switchmap/internal/mapcap/headless"
	"github.com/vbonduro/switchmap/internal/notify"
	"github.com/vbonduro/switchmap/internal/photostore/local"
	"github.com/vbonduro/switchmap/internal/remote"
	"github.com/vbonduro/switchmap/internal/selection"
	"github.com/vbonduro/switchmap/internal/shape"
	"github.com/vbonduro/switchmap/internal/store"
	"github.com/vbonduro/switchmap/internal/vision"
	claudevision "github.com/vbonduro/switchmap/internal/vision/claude"
	ollamavision "github.com/vbonduro/switchmap/internal/vision/ollama"
	"github.com/vbonduro/switchmap/internal/web"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.CacheDBPath)
	if err != nil {
		logger.Error("failed to open cache database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close cache database", "error", err)
		}
	}()

	photos, err := local.NewLocalPhotoStore(cfg.PhotoPath, logger)
	if err != nil {
		logger.Error("failed to initialize photo staging", "error", err)
		return
	}
	// Staged photos do not survive a restart: the edits they belonged to are gone.
	if err := photos.Purge(ctx); err != nil {
		logger.Warn("failed to purge photo staging", "error", err)
	}

	blobs := store.NewBlobStore(database)
	shapeCache := localcache.NewShapeCache(blobs, logger)
	cameraCache := localcache.NewCameraCache(blobs, logger)
	client := remote.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger)

	out := os.Stdout
	notifier := newConsoleNotifier(out, logger)

	m := headless.New(domain.Camera{})
	registry := shape.NewRegistry(m, logger)
	sel := selection.New(selection.Options{
		Registry:    registry,
		Repository:  client,
		Cache:       shapeCache,
		Notifier:    notifier,
		Logger:      logger,
		Photos:      photos,
		Describer:   newDescriber(cfg, logger),
		MaxPhotoDim: cfg.PhotoMaxDim,
	})
	draw := drawing.New(m, registry, sel, shapeCache, notifier, logger)
	session := canvas.New(canvas.Options{
		Map:       m,
		Registry:  registry,
		Selection: sel,
		Drawing:   draw,
		Remote:    client,
		Shapes:    shapeCache,
		Camera:    cameraCache,
		Notifier:  notifier,
		Logger:    logger,
		State:     &canvas.SessionState{},
		Debounce:  cfg.CameraDebounce,
	})

	if cfg.MetricsAddr != "" {
		srv := web.NewServer(session, logger)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("ops server error", "error", err)
			}
		}()
	}

	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start map session", "error", err)
		return
	}
	defer session.Teardown()

	r := &repl{m: m, sel: sel, draw: draw, session: session, out: out, logger: logger}
	if err := r.run(ctx, os.Stdin); err != nil {
		logger.Error("console error", "error", err)
	}
}

func newDescriber(cfg *config.Config, logger *slog.Logger) vision.Describer {
	switch cfg.VisionBackend {
	case "claude":
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		return claudevision.NewClaudeDescriber(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		return ollamavision.NewOllamaDescriber(cfg.OllamaHost, cfg.OllamaModel, cfg.HTTPTimeout)
	default:
		logger.Info("description suggestions disabled")
		return nil
	}
}

var _ notify.Notifier = (*consoleNotifier)(nil)
