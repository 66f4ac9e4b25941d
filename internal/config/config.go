package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Values come from an optional
// YAML file (CONFIG_PATH) with environment variable overrides on top.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type ServiceConfig struct {
	HTTPPort   int `mapstructure:"http_port"`
	HealthPort int `mapstructure:"health_port"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LLMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxTokens      int    `mapstructure:"max_tokens"`
}

type SearchConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxResults        int     `mapstructure:"max_results"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// WorkflowConfig holds the refinement policy. MinCritiquePasses is the
// loop driver: the workflow keeps looping back to research until this
// many critique passes have completed.
type WorkflowConfig struct {
	MinCritiquePasses int `mapstructure:"min_critique_passes"`
	CritiqueInputCap  int `mapstructure:"critique_input_cap"`
}

type StreamingConfig struct {
	RingCapacity int `mapstructure:"ring_capacity"`
	PacingMs     int `mapstructure:"pacing_ms"`
}

type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// Load reads the config file at CONFIG_PATH (if set) and applies env
// overrides. An unset CONFIG_PATH is not an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgPath := os.Getenv("CONFIG_PATH"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvOverrides(&c)
	if c.Workflow.MinCritiquePasses < 1 {
		c.Workflow.MinCritiquePasses = 1
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.http_port", 8080)
	v.SetDefault("service.health_port", 8081)
	v.SetDefault("temporal.host_port", "temporal:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "account-plan")
	v.SetDefault("llm.base_url", "http://llm-service:8000")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("search.base_url", "http://search-service:8090")
	v.SetDefault("search.timeout_seconds", 30)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.requests_per_second", 4.0)
	v.SetDefault("search.burst_size", 4)
	v.SetDefault("workflow.min_critique_passes", 1)
	v.SetDefault("workflow.critique_input_cap", 2000)
	v.SetDefault("streaming.ring_capacity", 256)
	v.SetDefault("streaming.pacing_ms", 100)
	v.SetDefault("redis.url", "redis://redis:6379")
	v.SetDefault("redis.enabled", false)
}

func applyEnvOverrides(c *Config) {
	c.Service.HTTPPort = GetEnvOrDefaultInt("HTTP_PORT", c.Service.HTTPPort)
	c.Service.HealthPort = GetEnvOrDefaultInt("HEALTH_PORT", c.Service.HealthPort)
	c.Temporal.HostPort = GetEnvOrDefault("TEMPORAL_HOST", c.Temporal.HostPort)
	c.Temporal.Namespace = GetEnvOrDefault("TEMPORAL_NAMESPACE", c.Temporal.Namespace)
	c.Temporal.TaskQueue = GetEnvOrDefault("TEMPORAL_TASK_QUEUE", c.Temporal.TaskQueue)
	c.LLM.BaseURL = GetEnvOrDefault("LLM_SERVICE_URL", c.LLM.BaseURL)
	c.LLM.Model = GetEnvOrDefault("LLM_MODEL", c.LLM.Model)
	c.Search.BaseURL = GetEnvOrDefault("SEARCH_SERVICE_URL", c.Search.BaseURL)
	c.Workflow.MinCritiquePasses = GetEnvOrDefaultInt("MIN_CRITIQUE_PASSES", c.Workflow.MinCritiquePasses)
	c.Streaming.RingCapacity = GetEnvOrDefaultInt("STREAMING_RING_CAPACITY", c.Streaming.RingCapacity)
	c.Streaming.PacingMs = GetEnvOrDefaultInt("STREAMING_PACING_MS", c.Streaming.PacingMs)
	c.Redis.URL = GetEnvOrDefault("REDIS_URL", c.Redis.URL)
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		c.Redis.Enabled = v == "1" || v == "true"
	}
}

// LLMTimeout returns the configured LLM call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// SearchTimeout returns the configured search call timeout as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

// PacingDelay is the flow-control sleep between streamed lines. Zero
// disables pacing for transports with unbuffered delivery.
func (c *Config) PacingDelay() time.Duration {
	if c.Streaming.PacingMs <= 0 {
		return 0
	}
	return time.Duration(c.Streaming.PacingMs) * time.Millisecond
}

// GetEnvOrDefault returns the env value or the fallback when unset.
func GetEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvOrDefaultInt returns the env value parsed as int, or the fallback.
func GetEnvOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
