package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DiscoveryConfig struct {
	Host                  string `yaml:"host"`
	BasePort              int    `yaml:"base_port"`
	Candidates            int    `yaml:"candidates"`
	ProbeTimeoutMs        int    `yaml:"probe_timeout_ms"`
	HTTPTimeoutMs         int    `yaml:"http_timeout_ms"`
	RescanIntervalSeconds int    `yaml:"rescan_interval_seconds"`
	MissCacheSize         int    `yaml:"miss_cache_size"`
	MissCacheTTLSeconds   int    `yaml:"miss_cache_ttl_seconds"`
}

type StreamsConfig struct {
	ChunkSize            int `yaml:"chunk_size"`
	DialTimeoutMs        int `yaml:"dial_timeout_ms"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	MaxIdleSeconds       int `yaml:"max_idle_seconds"`
	FPSWindow            int `yaml:"fps_window"`
	JPEGQuality          int `yaml:"jpeg_quality"`
}

// DetectionConfig drives the presence loop. An empty Cameras list means
// every discovered camera is checked.
type DetectionConfig struct {
	Enabled                bool     `yaml:"enabled"`
	Cameras                []string `yaml:"cameras"`
	IntervalSeconds        int      `yaml:"interval_seconds"`
	CaptureTimeoutMs       int      `yaml:"capture_timeout_ms"`
	MinSaveIntervalSeconds int      `yaml:"min_save_interval_seconds"`
	StatsEvery             int      `yaml:"stats_every"`
	SummaryEveryCycles     int      `yaml:"summary_every_cycles"`
	RetryDelaySeconds      int      `yaml:"retry_delay_seconds"`
}

// DetectorConfig selects and configures the person detector backend.
// Backend is one of "gemini", "openai" (alias "local_gemma3") or "none".
type DetectorConfig struct {
	Backend        string `yaml:"backend"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	GeminiModel    string `yaml:"gemini_model"`
	GeminiEndpoint string `yaml:"gemini_endpoint"`
	OpenAIURL      string `yaml:"openai_url"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIModel    string `yaml:"openai_model"`
}

type EventsConfig struct {
	PublishRetryMax int `yaml:"publish_retry_max"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	MQTTHost      string `yaml:"mqtt_host"`
	MQTTPort      int    `yaml:"mqtt_port"`
	MQTTUsername  string `yaml:"mqtt_username"`
	MQTTPassword  string `yaml:"mqtt_password"`
	MQTTClientID  string `yaml:"mqtt_client_id"`
	MQTTTopicBase string `yaml:"mqtt_topic_base"`

	RedisAddr       string `yaml:"redis_addr"`
	RedisTTLSeconds int    `yaml:"redis_ttl_seconds"`
}

type EvidenceConfig struct {
	MinIOEndpoint  string `yaml:"minio_endpoint"`
	MinIOAccessKey string `yaml:"minio_access_key"`
	MinIOSecretKey string `yaml:"minio_secret_key"`
	MinIOBucket    string `yaml:"minio_bucket"`
	MinIOUseSSL    bool   `yaml:"minio_use_ssl"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Streams   StreamsConfig   `yaml:"streams"`
	Detection DetectionConfig `yaml:"detection"`
	Detector  DetectorConfig  `yaml:"detector"`
	Events    EventsConfig    `yaml:"events"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Discovery: DiscoveryConfig{
			Host:                  "localhost",
			BasePort:              10001,
			Candidates:            50,
			ProbeTimeoutMs:        1000,
			HTTPTimeoutMs:         1000,
			RescanIntervalSeconds: 30,
			MissCacheSize:         256,
			MissCacheTTLSeconds:   10,
		},
		Streams: StreamsConfig{
			ChunkSize:            4096,
			DialTimeoutMs:        10000,
			SweepIntervalSeconds: 60,
			MaxIdleSeconds:       300,
			FPSWindow:            10,
			JPEGQuality:          85,
		},
		Detection: DetectionConfig{
			Enabled:                true,
			IntervalSeconds:        300,
			CaptureTimeoutMs:       5000,
			MinSaveIntervalSeconds: 60,
			StatsEvery:             10,
			SummaryEveryCycles:     12,
			RetryDelaySeconds:      60,
		},
		Detector: DetectorConfig{
			Backend:        "gemini",
			TimeoutMs:      30000,
			GeminiModel:    "gemini-2.0-flash-001",
			GeminiEndpoint: "https://generativelanguage.googleapis.com/v1beta",
			OpenAIURL:      "http://localhost:8000",
			OpenAIModel:    "gemma3",
		},
		Events: EventsConfig{
			PublishRetryMax:   2,
			NATSSubjectPrefix: "camwatch.presence",
			MQTTPort:          1883,
			MQTTClientID:      "camwatch",
			MQTTTopicBase:     "camwatch",
			RedisTTLSeconds:   600,
		},
		Evidence: EvidenceConfig{
			MinIOBucket: "camwatch-evidence",
		},
	}
}

// Load reads the YAML file at path (a missing file is not an error),
// then applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.Server.Addr = getEnv("CAMWATCH_ADDR", cfg.Server.Addr)
	cfg.Discovery.Host = getEnv("CAMERA_HOST", cfg.Discovery.Host)
	cfg.Discovery.BasePort = getEnvInt("CAMERA_BASE_PORT", cfg.Discovery.BasePort)

	cfg.Detection.Enabled = getEnvBool("DETECTION_ENABLED", cfg.Detection.Enabled)

	cfg.Detector.Backend = getEnv("AI_MODEL_TYPE", cfg.Detector.Backend)
	cfg.Detector.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.Detector.GeminiAPIKey)
	cfg.Detector.OpenAIURL = getEnv("LOCAL_GEMMA3_URL", cfg.Detector.OpenAIURL)
	cfg.Detector.OpenAIAPIKey = getEnv("LOCAL_GEMMA3_API_KEY", cfg.Detector.OpenAIAPIKey)

	cfg.Events.NATSURL = getEnv("NATS_URL", cfg.Events.NATSURL)
	cfg.Events.MQTTHost = getEnv("MQTT_HOST", cfg.Events.MQTTHost)
	cfg.Events.MQTTPort = getEnvInt("MQTT_PORT", cfg.Events.MQTTPort)
	cfg.Events.MQTTUsername = getEnv("MQTT_USERNAME", cfg.Events.MQTTUsername)
	cfg.Events.MQTTPassword = getEnv("MQTT_PASSWORD", cfg.Events.MQTTPassword)
	cfg.Events.RedisAddr = getEnv("REDIS_ADDR", cfg.Events.RedisAddr)

	cfg.Evidence.MinIOEndpoint = getEnv("MINIO_ENDPOINT", cfg.Evidence.MinIOEndpoint)
	cfg.Evidence.MinIOAccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Evidence.MinIOAccessKey)
	cfg.Evidence.MinIOSecretKey = getEnv("MINIO_SECRET_KEY", cfg.Evidence.MinIOSecretKey)
	cfg.Evidence.MinIOBucket = getEnv("MINIO_BUCKET", cfg.Evidence.MinIOBucket)
	cfg.Evidence.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", cfg.Evidence.MinIOUseSSL)
}

func (c Config) Validate() error {
	var problems []string
	if c.Discovery.BasePort <= 0 || c.Discovery.BasePort > 65534 {
		problems = append(problems, "discovery.base_port out of range")
	}
	if c.Discovery.Candidates <= 0 {
		problems = append(problems, "discovery.candidates must be positive")
	}
	if c.Discovery.BasePort+2*(c.Discovery.Candidates-1)+1 > 65535 {
		problems = append(problems, "discovery port range exceeds 65535")
	}
	if c.Streams.ChunkSize <= 0 {
		problems = append(problems, "streams.chunk_size must be positive")
	}
	if c.Streams.FPSWindow <= 0 {
		problems = append(problems, "streams.fps_window must be positive")
	}
	if c.Detection.IntervalSeconds <= 0 {
		problems = append(problems, "detection.interval_seconds must be positive")
	}
	if c.Detection.MinSaveIntervalSeconds < 0 {
		problems = append(problems, "detection.min_save_interval_seconds must not be negative")
	}
	switch strings.ToLower(c.Detector.Backend) {
	case "gemini", "openai", "local_gemma3", "none", "":
	default:
		problems = append(problems, fmt.Sprintf("detector.backend %q unknown", c.Detector.Backend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (d DiscoveryConfig) ProbeTimeout() time.Duration { return ms(d.ProbeTimeoutMs) }
func (d DiscoveryConfig) HTTPTimeout() time.Duration  { return ms(d.HTTPTimeoutMs) }
func (d DiscoveryConfig) RescanInterval() time.Duration {
	return time.Duration(d.RescanIntervalSeconds) * time.Second
}
func (d DiscoveryConfig) MissCacheTTL() time.Duration {
	return time.Duration(d.MissCacheTTLSeconds) * time.Second
}

func (s StreamsConfig) DialTimeout() time.Duration { return ms(s.DialTimeoutMs) }
func (s StreamsConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}
func (s StreamsConfig) MaxIdle() time.Duration { return time.Duration(s.MaxIdleSeconds) * time.Second }

func (d DetectionConfig) Interval() time.Duration {
	return time.Duration(d.IntervalSeconds) * time.Second
}
func (d DetectionConfig) CaptureTimeout() time.Duration { return ms(d.CaptureTimeoutMs) }
func (d DetectionConfig) MinSaveInterval() time.Duration {
	return time.Duration(d.MinSaveIntervalSeconds) * time.Second
}
func (d DetectionConfig) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelaySeconds) * time.Second
}

func (d DetectorConfig) Timeout() time.Duration { return ms(d.TimeoutMs) }

func (e EventsConfig) RedisTTL() time.Duration {
	return time.Duration(e.RedisTTLSeconds) * time.Second
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
