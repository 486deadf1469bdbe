// Command detectord serves a local detection model over gRPC so that workers on
// small machines can run with MODEL_BACKEND=remote.
package main

import (
	"flag"
	"image"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"espcam-worker-go/internal/config"
	"espcam-worker-go/internal/services/detection"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()
	listen := flag.String("listen", ":50052", "gRPC listen address")
	backend := flag.String("backend", cfg.ModelBackend, "model backend to serve: onnx or cascade")
	flag.Parse()

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if *backend == detection.BackendRemote {
		log.Fatal().Msg("detectord cannot serve the remote backend")
	}

	model, err := detection.LoadModel(detection.ModelOptions{
		Backend:      *backend,
		ModelPath:    cfg.ModelPath,
		LabelsPath:   cfg.LabelsPath,
		CascadePath:  cfg.CascadePath,
		UseGPU:       cfg.UseGPU,
		NetInputSize: image.Pt(640, 640),
		NMSThreshold: cfg.NMSThreshold,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load detection model")
	}
	defer model.Close()

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatal().Err(err).Str("listen", *listen).Msg("Failed to listen")
	}

	srv := grpc.NewServer()
	detection.RegisterDetectorServer(srv, detection.NewModelServer(model))
	hs := health.NewServer()
	hs.SetServingStatus(detection.DetectorServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutdown signal received")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	log.Info().
		Str("listen", lis.Addr().String()).
		Str("backend", model.Name()).
		Int("labels", len(model.Labels())).
		Msg("Detector service ready")
	if err := srv.Serve(lis); err != nil {
		log.Error().Err(err).Msg("gRPC server stopped")
	}
}
