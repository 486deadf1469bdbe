// @title ESP-CAM Detection Worker API
// @version 1.0.0
// @description Live object detection on ESP32-CAM and webcam streams: pipeline control, camera probing, annotated MJPEG output
// @BasePath /
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/api"
	"espcam-worker-go/internal/config"
	"espcam-worker-go/internal/logging"
	"espcam-worker-go/internal/services/detection"
	"espcam-worker-go/internal/services/messaging"
	"espcam-worker-go/internal/services/publisher"
	"espcam-worker-go/internal/services/publisher/window"
	"espcam-worker-go/internal/worker"
)

func init() {
	// OpenCV HighGUI must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = log.Output(console)

	// Load configuration
	cfg := config.Load()

	// Command line overrides
	port := flag.Int("port", cfg.Port, "API port")
	target := flag.String("target", cfg.CameraTarget, "camera to start on boot: ESP32 IP/URL, stream URL or webcam index")
	showWindow := flag.Bool("display", cfg.DisplayWindow, "show annotated frames in a local window")
	flag.Parse()
	cfg.Port = *port
	cfg.CameraTarget = *target
	cfg.DisplayWindow = *showWindow

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		if lw, _, err := logging.StartLogdy(cfg); err != nil {
			log.Warn().Err(err).Msg("Logdy disabled")
		} else {
			log.Logger = log.Output(zerolog.MultiLevelWriter(console, lw))
		}
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("model_backend", cfg.ModelBackend).
		Msg("Starting ESP-CAM detection worker")

	model, err := detection.LoadModel(modelOptions(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load detection model")
	}
	stageLogger := logging.NewServiceLogger(cfg, "detection")
	stage := detection.NewStage(model, cfg.InferenceWidth, cfg.InferenceHeight, &stageLogger)

	pubLogger := logging.NewServiceLogger(cfg, "publisher")
	presenter := publisher.NewService(cfg, &pubLogger)

	deps := worker.Deps{
		Detector:  stage,
		ModelName: modelName(cfg, model),
		Presenter: presenter,
	}

	var display *window.Display
	if cfg.DisplayWindow {
		displayLogger := logging.NewServiceLogger(cfg, "display")
		display = window.NewDisplay(cfg.DisplayTitle, &displayLogger)
		deps.Sinks = append(deps.Sinks, display)
	}

	var bus *messaging.Service
	if cfg.NatsEnabled {
		bus, err = messaging.NewService(cfg)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NatsURL).Msg("NATS unavailable, detection events disabled")
		} else {
			deps.Events = bus
		}
	}

	w, err := worker.New(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create worker")
	}

	if bus != nil {
		if _, err := w.ListenControl(bus, cfg.ControlSubject, cfg.ProbeTimeout); err != nil {
			log.Warn().Err(err).Msg("Control subject unavailable")
		}
	}

	server := api.NewServer(cfg, w, presenter)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StartOnBoot && cfg.CameraTarget != "" {
		go func() {
			if _, err := w.Start(ctx, worker.StartRequest{Target: cfg.CameraTarget}); err != nil {
				log.Error().Err(err).Str("target", cfg.CameraTarget).Msg("Failed to start pipeline on boot")
			}
		}()
	}

	if display != nil {
		if display.Run(ctx) {
			log.Info().Msg("Display closed, shutting down")
		}
	} else {
		<-ctx.Done()
	}
	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := w.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker forced to shutdown")
	}
	if err := presenter.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Publisher shutdown failed")
	}
	if bus != nil {
		if err := bus.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Error().Err(err).Msg("NATS shutdown failed")
		}
	}
	log.Info().Msg("Shutdown complete")
}

func modelOptions(cfg *config.Config) detection.ModelOptions {
	return detection.ModelOptions{
		Backend:       cfg.ModelBackend,
		ModelPath:     cfg.ModelPath,
		LabelsPath:    cfg.LabelsPath,
		CascadePath:   cfg.CascadePath,
		UseGPU:        cfg.UseGPU,
		NetInputSize:  image.Pt(640, 640),
		NMSThreshold:  cfg.NMSThreshold,
		RemoteURL:     cfg.AIGRPCURL,
		RemoteTimeout: cfg.AITimeout,
		JPEGQuality:   cfg.AIJPEGQuality,
	}
}

func modelName(cfg *config.Config, m detection.Model) string {
	switch m.Name() {
	case detection.BackendRemote:
		return fmt.Sprintf("%s:%s", m.Name(), cfg.AIGRPCURL)
	case detection.BackendCascade:
		return fmt.Sprintf("%s:%s", m.Name(), filepath.Base(cfg.CascadePath))
	default:
		return fmt.Sprintf("%s:%s", m.Name(), filepath.Base(cfg.ModelPath))
	}
}
