// Package config loads the environment-variable configuration from
// spec.md §6, in the teacher's defaults()+Load() style: a struct of
// typed settings, sensible defaults, environment overrides read once at
// startup.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LogLevel is one of the four recognised values.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// Config holds every environment-recognised setting from spec.md §6.
type Config struct {
	NodeEnv  string
	LogLevel LogLevel

	ParseBufferSize int

	HTTPServerPort        int
	HTTPServerBacklog     int
	HTTPServerHealthPath  string
	HTTPServerMetricsPath string

	HTTPClientTimeoutMS          int
	HTTPClientMaxRetries         int
	HTTPClientBackoffFactorS     float64
	HTTPClientMaxContentLength   int64
	HTTPClientRejectUnauthorized bool
	HTTPClientDefaultConcurrency int

	QueueDrainGracePeriodS float64
	InputDrainTimeoutS     float64
	HealthCheckIntervalS   float64

	MetricsPort   int
	MetricsPath   string
	MetricsPrefix string

	BackpressureIntervalS    float64
	BackpressureRSS          uint64
	BackpressureHeapTotal    uint64
	BackpressureHeapUsed     uint64
	BackpressureQueuedEvents int

	DeadLetterTarget string
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		NodeEnv:  "development",
		LogLevel: LogInfo,

		ParseBufferSize: 1 << 20,

		HTTPServerPort:        8080,
		HTTPServerBacklog:     511,
		HTTPServerHealthPath:  "/healthz",
		HTTPServerMetricsPath: "/metrics",

		HTTPClientTimeoutMS:          10_000,
		HTTPClientMaxRetries:         3,
		HTTPClientBackoffFactorS:     0.5,
		HTTPClientMaxContentLength:   10 << 20,
		HTTPClientRejectUnauthorized: true,
		HTTPClientDefaultConcurrency: 4,

		QueueDrainGracePeriodS: 0.25,
		InputDrainTimeoutS:     5,
		HealthCheckIntervalS:   1,

		MetricsPort:   9090,
		MetricsPath:   "/metrics",
		MetricsPrefix: "cdp",

		BackpressureIntervalS: 1,

		DeadLetterTarget: "stdout",
	}
}

// Load loads a .env file ambient to the process (if present, silently
// ignored otherwise) and then reads every recognised environment
// variable over top of the defaults.
func Load() *Config {
	_ = godotenv.Load()

	cfg := defaults()

	if v := os.Getenv("NODE_ENV"); v != "" {
		cfg.NodeEnv = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v, ok := getInt("PARSE_BUFFER_SIZE"); ok {
		cfg.ParseBufferSize = v
	}

	if v, ok := getInt("HTTP_SERVER_PORT"); ok {
		cfg.HTTPServerPort = v
	}
	if v, ok := getInt("HTTP_SERVER_BACKLOG"); ok {
		cfg.HTTPServerBacklog = v
	}
	if v := os.Getenv("HTTP_SERVER_HEALTH_PATH"); v != "" {
		cfg.HTTPServerHealthPath = v
	}
	if v := os.Getenv("HTTP_SERVER_METRICS_PATH"); v != "" {
		cfg.HTTPServerMetricsPath = v
	}

	if v, ok := getInt("HTTP_CLIENT_TIMEOUT_MS"); ok {
		cfg.HTTPClientTimeoutMS = v
	}
	if v, ok := getInt("HTTP_CLIENT_MAX_RETRIES"); ok {
		cfg.HTTPClientMaxRetries = v
	}
	if v, ok := getFloat("HTTP_CLIENT_BACKOFF_FACTOR"); ok {
		cfg.HTTPClientBackoffFactorS = v
	}
	if v, ok := getInt64("HTTP_CLIENT_MAX_CONTENT_LENGTH"); ok {
		cfg.HTTPClientMaxContentLength = v
	}
	if v, ok := getBool("HTTP_CLIENT_REJECT_UNAUTHORIZED"); ok {
		cfg.HTTPClientRejectUnauthorized = v
	}
	if v, ok := getInt("HTTP_CLIENT_DEFAULT_CONCURRENCY"); ok {
		cfg.HTTPClientDefaultConcurrency = v
	}

	if v, ok := getFloat("QUEUE_DRAIN_GRACE_PERIOD"); ok {
		cfg.QueueDrainGracePeriodS = v
	}
	if v, ok := getFloat("INPUT_DRAIN_TIMEOUT"); ok {
		cfg.InputDrainTimeoutS = v
	}
	if v, ok := getFloat("HEALTH_CHECK_INTERVAL"); ok {
		cfg.HealthCheckIntervalS = v
	}

	if v, ok := getInt("METRICS_PORT"); ok {
		cfg.MetricsPort = v
	}
	if v := os.Getenv("METRICS_PATH"); v != "" {
		cfg.MetricsPath = v
	}
	if v := os.Getenv("METRICS_NAME_PREFIX"); v != "" {
		cfg.MetricsPrefix = v
	}

	if v, ok := getFloat("BACKPRESSURE_INTERVAL"); ok {
		cfg.BackpressureIntervalS = v
	}
	if v, ok := getUint64("BACKPRESSURE_RSS"); ok {
		cfg.BackpressureRSS = v
	}
	if v, ok := getUint64("BACKPRESSURE_HEAP_TOTAL"); ok {
		cfg.BackpressureHeapTotal = v
	}
	if v, ok := getUint64("BACKPRESSURE_HEAP_USED"); ok {
		cfg.BackpressureHeapUsed = v
	}
	if v, ok := getInt("BACKPRESSURE_QUEUED_EVENTS"); ok {
		cfg.BackpressureQueuedEvents = v
	}

	if v := os.Getenv("DEAD_LETTER_TARGET"); v != "" {
		cfg.DeadLetterTarget = v
	}

	return cfg
}

func getInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func getInt64(name string) (int64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

func getUint64(name string) (uint64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	return n, err == nil
}

func getFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	return n, err == nil
}

func getBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}
