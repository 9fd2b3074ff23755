package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/caption"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/config"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/enhance"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/pipeline"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/present"
)

// Application holds all components for the captioning pipeline run.
type Application struct {
	config      *config.Config
	supervisor  *pipeline.Supervisor
	server      *present.Server
	enhancer    enhance.Enhancer
	logger      *zap.Logger
	snapshotDir string
}

func main() {
	cfg := config.NewDefaultConfig()

	listCameras := flag.Bool("list-cameras", false, "list available cameras and exit")
	snapshotDir := flag.String("snapshot-dir", ".", "directory for frame snapshots (SIGUSR1 triggers one)")
	flag.IntVar(&cfg.Camera.Index, "camera", cfg.Camera.Index, "camera device index")
	flag.IntVar(&cfg.Camera.Width, "width", cfg.Camera.Width, "capture width")
	flag.IntVar(&cfg.Camera.Height, "height", cfg.Camera.Height, "capture height")
	flag.IntVar(&cfg.Camera.TargetFPS, "fps", cfg.Camera.TargetFPS, "target capture frame rate")
	flag.StringVar(&cfg.Enhance.Profile, "enhance", cfg.Enhance.Profile, "enhancement profile: standard, vivid, or none")
	flag.StringVar(&cfg.Captioning.Endpoint, "endpoint", cfg.Captioning.Endpoint, "captioning model HTTP endpoint")
	flag.Float64Var(&cfg.Captioning.TargetConfidence, "target-confidence", cfg.Captioning.TargetConfidence, "confidence the cadence controller tracks")
	flag.StringVar(&cfg.Present.Addr, "addr", cfg.Present.Addr, "presentation server listen address")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if *listCameras {
		printCameras()
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	app, err := NewApplication(cfg, *snapshotDir)
	if err != nil {
		logger.Fatal("Failed to create application", zap.Error(err))
	}
	defer app.Cleanup()

	if err := app.Run(); err != nil {
		logger.Fatal("Pipeline failed", zap.Error(err))
	}
}

func NewApplication(cfg *config.Config, snapshotDir string) (*Application, error) {
	enhancer, err := newEnhancer(cfg.Enhance.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create enhancer: %w", err)
	}

	opener := camera.NewGoCVOpener(cfg.Camera)
	captioner := caption.NewHTTPCaptioner(cfg.Captioning.Endpoint, cfg.Captioning.RequestTimeout)

	supervisor, err := pipeline.New(cfg, opener, enhancer, captioner)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return &Application{
		config:      cfg,
		supervisor:  supervisor,
		server:      present.NewServer(cfg.Present, supervisor),
		enhancer:    enhancer,
		logger:      zap.L().Named("app"),
		snapshotDir: snapshotDir,
	}, nil
}

func newEnhancer(profile string) (enhance.Enhancer, error) {
	if profile == "none" {
		return enhance.Nop{}, nil
	}
	return enhance.NewGoCV(profile)
}

// Run starts the pipeline and the presentation server, then blocks until a
// termination signal arrives or the capture loop halts itself.
func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start presentation server: %w", err)
	}

	app.logger.Info("running",
		zap.String("session_id", app.supervisor.SessionID()),
		zap.String("addr", app.config.Present.Addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	snapCh := make(chan os.Signal, 1)
	signal.Notify(snapCh, syscall.SIGUSR1)

	healthTicker := time.NewTicker(time.Second)
	defer healthTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			app.logger.Info("shutting down", zap.String("signal", sig.String()))
			return app.shutdown()

		case <-snapCh:
			path, err := app.supervisor.SaveSnapshot(app.snapshotDir)
			if err != nil {
				app.logger.Warn("snapshot failed", zap.Error(err))
				continue
			}
			app.logger.Info("snapshot written", zap.String("path", path))

		case <-healthTicker.C:
			if app.supervisor.Halted() {
				err := app.supervisor.Err()
				app.logger.Error("capture halted, shutting down", zap.Error(err))
				if stopErr := app.shutdown(); stopErr != nil {
					app.logger.Warn("shutdown after halt reported errors", zap.Error(stopErr))
				}
				return err
			}
		}
	}
}

func (app *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.Warn("presentation server stop failed", zap.Error(err))
	}
	return app.supervisor.Stop()
}

func (app *Application) Cleanup() {
	if closer, ok := app.enhancer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			app.logger.Warn("enhancer close failed", zap.Error(err))
		}
	}
}

func printCameras() {
	cameras := camera.ListCameras()
	if len(cameras) == 0 {
		fmt.Println("No cameras found")
		return
	}
	fmt.Println("Available cameras:")
	for _, info := range cameras {
		fmt.Printf("  [%d] %s\n", info.Index, info.Label)
	}
}
