package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/models"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// NATS (detection events)
	// Default: nats://localhost:4222, nats://nats:4222 inside Docker
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration
	DetectionsSubject  string
	ControlSubject     string

	// Camera
	CameraTarget   string // started on boot when set; "0" for the first webcam
	ProbeTimeout   time.Duration
	CaptureWidth   int
	CaptureHeight  int
	Mirror         bool
	ThumbnailWidth int
	StartOnBoot    bool
	DisplayWindow  bool
	DisplayTitle   string

	// Model
	ModelBackend  string // onnx | cascade | remote
	ModelPath     string
	LabelsPath    string
	CascadePath   string
	UseGPU        bool
	NMSThreshold  float32
	AIGRPCURL     string
	AITimeout     time.Duration
	AIJPEGQuality int

	// Pipeline
	ConfidenceThreshold float32
	TargetFPS           float64
	InferenceWidth      int
	InferenceHeight     int

	// Publishing
	PublishQuality int

	// Metadata Overlay
	ShowFPS             bool
	ShowLatency         bool
	ShowDetectionsCount bool
	OverlayColor        string
	OverlayFont         int

	// Swagger Configuration
	SwaggerHost string

	// Treat the capture as stale if no frames for this duration
	FrameStaleThreshold time.Duration

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "espcam-1"),
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),
		DetectionsSubject:  getEnv("DETECTIONS_SUBJECT", "detections"),
		ControlSubject:     getEnv("CONTROL_SUBJECT", ""),

		// Camera
		CameraTarget:   getEnv("CAMERA_TARGET", ""),
		ProbeTimeout:   getEnvDuration("CAMERA_PROBE_TIMEOUT", 5*time.Second),
		CaptureWidth:   getEnvInt("CAPTURE_WIDTH", 0),
		CaptureHeight:  getEnvInt("CAPTURE_HEIGHT", 0),
		Mirror:         getEnvBool("MIRROR", true),
		ThumbnailWidth: getEnvInt("THUMBNAIL_WIDTH", 320),
		StartOnBoot:    getEnvBool("START_ON_BOOT", true),
		DisplayWindow:  getEnvBool("DISPLAY_WINDOW", false),
		DisplayTitle:   getEnv("DISPLAY_TITLE", "espcam detection"),

		// Model
		ModelBackend:  strings.ToLower(getEnv("MODEL_BACKEND", "onnx")),
		ModelPath:     getEnv("MODEL_PATH", "models/yolov8n.onnx"),
		LabelsPath:    getEnv("LABELS_PATH", ""),
		CascadePath:   getEnv("CASCADE_PATH", "models/haarcascade_frontalface_default.xml"),
		UseGPU:        getEnvBool("USE_GPU", false),
		NMSThreshold:  getEnvFloat32("NMS_THRESHOLD", 0.45),
		AIGRPCURL:     getEnv("AI_GRPC_URL", "localhost:50052"),
		AITimeout:     getEnvDuration("AI_TIMEOUT", 5*time.Second),
		AIJPEGQuality: getEnvInt("AI_JPEG_QUALITY", 95),

		// Pipeline, defaults follow the desktop app: 640x360 inference, 0.5 cut, 30ms tick
		ConfidenceThreshold: getEnvFloat32("CONFIDENCE_THRESHOLD", 0.5),
		TargetFPS:           getEnvFloat("TARGET_FPS", 33),
		InferenceWidth:      getEnvInt("INFERENCE_WIDTH", 640),
		InferenceHeight:     getEnvInt("INFERENCE_HEIGHT", 360),

		// Publishing
		PublishQuality: getEnvInt("PUBLISH_QUALITY", 75),

		// Metadata Overlay
		ShowFPS:             getEnvBool("SHOW_FPS", true),
		ShowLatency:         getEnvBool("SHOW_LATENCY", false),
		ShowDetectionsCount: getEnvBool("SHOW_DETECTIONS_COUNT", false),
		OverlayColor:        getEnv("OVERLAY_COLOR", "#FFFFFF"),
		OverlayFont:         getEnvInt("OVERLAY_FONT", 0),

		SwaggerHost: getEnv("SWAGGER_HOST", "localhost:8000"),

		FrameStaleThreshold: getEnvDuration("FRAME_STALE_THRESHOLD", 10*time.Second),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if cfg.ControlSubject == "" {
		cfg.ControlSubject = "espcam." + cfg.WorkerID + ".control"
	}
	return cfg
}

// PipelineDefaults returns the live pipeline settings the worker boots with.
func (c *Config) PipelineDefaults() models.PipelineConfig {
	return models.PipelineConfig{
		ConfidenceThreshold: c.ConfidenceThreshold,
		TargetFPS:           c.TargetFPS,
		InferenceWidth:      c.InferenceWidth,
		InferenceHeight:     c.InferenceHeight,
		Mirror:              c.Mirror,
		ShowStats:           c.ShowFPS || c.ShowLatency || c.ShowDetectionsCount,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	return float32(getEnvFloat(key, float64(defaultValue)))
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}
	if isRunningInDocker() {
		return "nats://nats:4222"
	}
	return "nats://localhost:4222"
}
