package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Data source for pre-aggregated heatmap JSON files.
	DataBaseURL      string
	DataTimeout      time.Duration
	DatasetCacheSize int
	Species          []string
	PreloadDatasets  bool

	// Rendering.
	BasemapPath  string
	CanvasWidth  int
	CanvasHeight int

	// Playback.
	FrameInterval  time.Duration
	ResizeDebounce time.Duration

	// Kafka dataset-invalidation feed (optional).
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	dataTimeout, err := durationEnv("DATA_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	frameInterval, err := durationEnv("FRAME_INTERVAL", 800*time.Millisecond)
	if err != nil {
		return nil, err
	}
	resizeDebounce, err := durationEnv("RESIZE_DEBOUNCE", 250*time.Millisecond)
	if err != nil {
		return nil, err
	}
	cacheSize, err := positiveIntEnv("DATASET_CACHE_SIZE", 16)
	if err != nil {
		return nil, err
	}
	canvasWidth, err := positiveIntEnv("CANVAS_WIDTH", 960)
	if err != nil {
		return nil, err
	}
	canvasHeight, err := positiveIntEnv("CANVAS_HEIGHT", 540)
	if err != nil {
		return nil, err
	}

	kafkaBrokers := splitList(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataBaseURL:      os.Getenv("DATA_BASE_URL"),
		DataTimeout:      dataTimeout,
		DatasetCacheSize: cacheSize,
		Species:          splitList(os.Getenv("SPECIES")),
		PreloadDatasets:  os.Getenv("PRELOAD_DATASETS") == "true",

		BasemapPath:  os.Getenv("BASEMAP_PATH"),
		CanvasWidth:  canvasWidth,
		CanvasHeight: canvasHeight,

		FrameInterval:  frameInterval,
		ResizeDebounce: resizeDebounce,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   envOrDefault("KAFKA_INVALIDATION_TOPIC", "heatmap-dataset-updates"),
		KafkaGroupID: envOrDefault("KAFKA_GROUP_ID", "bird-heatmap-service"),
	}

	if cfg.DataBaseURL == "" {
		return nil, errors.New("DATA_BASE_URL is required")
	}
	if len(cfg.Species) == 0 {
		return nil, errors.New("SPECIES is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
