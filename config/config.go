package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"audio-blinkshot/internal/domain"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Together  TogetherConfig  `yaml:"together"`
	Limiter   LimiterConfig   `yaml:"limiter"`
	Client    ClientConfig    `yaml:"client"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	Environment       string   `yaml:"environment"`
	MaxBodyBytes      int64    `yaml:"max_body_bytes"`
	ThrottlePerMinute int      `yaml:"throttle_per_minute"`
	ThrottleBurst     int      `yaml:"throttle_burst"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
}

type TogetherConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type LimiterConfig struct {
	Backend       string        `yaml:"backend"`
	Path          string        `yaml:"path"`
	Limit         int           `yaml:"limit"`
	Window        time.Duration `yaml:"window"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

type ClientConfig struct {
	ServerURL          string        `yaml:"server_url"`
	Source             string        `yaml:"source"`
	File               string        `yaml:"file"`
	Loop               bool          `yaml:"loop"`
	SampleRate         int           `yaml:"sample_rate"`
	ChunkInterval      time.Duration `yaml:"chunk_interval"`
	TranscribeInterval time.Duration `yaml:"transcribe_interval"`
	GenerateInterval   time.Duration `yaml:"generate_interval"`
	MinAudioBytes      int           `yaml:"min_audio_bytes"`
	MinTranscriptChars int           `yaml:"min_transcript_chars"`
	Mood               string        `yaml:"mood"`
	CredentialsPath    string        `yaml:"credentials_path"`
}

type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	TraceStdout    bool   `yaml:"trace_stdout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path, expanding ${VAR} references. An empty
// path yields the defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := Config{
		Telemetry: TelemetryConfig{MetricsEnabled: true},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrideString(&c.Together.APIKey, "TOGETHER_API_KEY")
	overrideString(&c.Server.Addr, "BLINKSHOT_ADDR")
	overrideString(&c.Server.Environment, "BLINKSHOT_ENV")
	overrideString(&c.Limiter.Backend, "BLINKSHOT_LIMITER_BACKEND")
	overrideString(&c.Limiter.Path, "BLINKSHOT_LIMITER_PATH")
	overrideInt(&c.Limiter.Limit, "BLINKSHOT_LIMITER_LIMIT")
	overrideString(&c.Client.ServerURL, "BLINKSHOT_SERVER_URL")
	overrideString(&c.Telemetry.OTLPEndpoint, "BLINKSHOT_OTLP_ENDPOINT")
	overrideString(&c.Log.Level, "BLINKSHOT_LOG_LEVEL")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 25 << 20
	}
	if c.Server.ThrottlePerMinute == 0 {
		c.Server.ThrottlePerMinute = 300
	}
	if c.Server.ThrottleBurst == 0 {
		c.Server.ThrottleBurst = 60
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Together.BaseURL == "" {
		c.Together.BaseURL = "https://api.together.xyz/v1"
	}
	if c.Limiter.Backend == "" {
		c.Limiter.Backend = "memory"
	}
	if c.Limiter.Path == "" {
		c.Limiter.Path = "./data/ratelimit.db"
	}
	if c.Limiter.Limit == 0 {
		c.Limiter.Limit = 15
	}
	if c.Limiter.Window == 0 {
		c.Limiter.Window = 24 * time.Hour
	}
	if c.Limiter.PruneInterval == 0 {
		c.Limiter.PruneInterval = 10 * time.Minute
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = "http://localhost:8080"
	}
	if c.Client.Source == "" {
		c.Client.Source = "microphone"
	}
	if c.Client.SampleRate == 0 {
		c.Client.SampleRate = 16000
	}
	if c.Client.ChunkInterval == 0 {
		c.Client.ChunkInterval = time.Second
	}
	if c.Client.TranscribeInterval == 0 {
		c.Client.TranscribeInterval = 2 * time.Second
	}
	if c.Client.GenerateInterval == 0 {
		c.Client.GenerateInterval = 1500 * time.Millisecond
	}
	if c.Client.MinAudioBytes == 0 {
		c.Client.MinAudioBytes = 1000
	}
	if c.Client.MinTranscriptChars == 0 {
		c.Client.MinTranscriptChars = 3
	}
	if c.Client.Mood == "" {
		c.Client.Mood = string(domain.DefaultMood)
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "audio-blinkshot"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Production() bool {
	return c.Server.Environment == "production"
}

// Validate checks the settings the server needs.
func (c *Config) Validate() error {
	switch c.Limiter.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("limiter.backend must be memory or sqlite, got %q", c.Limiter.Backend)
	}
	if c.Limiter.Limit < 0 {
		return errors.New("limiter.limit must not be negative")
	}
	if c.Limiter.Window < 0 {
		return errors.New("limiter.window must not be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		return errors.New("server.max_body_bytes must not be negative")
	}
	return c.validateLog()
}

// ValidateClient checks the settings the recording client needs.
func (c *Config) ValidateClient() error {
	switch c.Client.Source {
	case "microphone":
	case "file":
		if c.Client.File == "" {
			return errors.New("client.file is required for the file source")
		}
	default:
		return fmt.Errorf("client.source must be microphone or file, got %q", c.Client.Source)
	}
	if _, err := domain.ParseMood(c.Client.Mood); err != nil {
		return fmt.Errorf("client.mood: %w", err)
	}
	if c.Client.ChunkInterval < 0 || c.Client.TranscribeInterval < 0 || c.Client.GenerateInterval < 0 {
		return errors.New("client intervals must not be negative")
	}
	return c.validateLog()
}

func (c *Config) validateLog() error {
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
