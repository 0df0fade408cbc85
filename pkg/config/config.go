package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Binance struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		DepthLevels    int           `yaml:"depth_levels"`
		ReconnectFloor time.Duration `yaml:"reconnect_floor"`
		ReconnectCeil  time.Duration `yaml:"reconnect_ceil"`
		QueueSize      int           `yaml:"queue_size"`
	} `yaml:"binance"`
	Capture struct {
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
		BufferSize   int           `yaml:"buffer_size"`
	} `yaml:"capture"`
	Engine struct {
		FlowWindow    time.Duration `yaml:"flow_window"`
		AnomalyWindow time.Duration `yaml:"anomaly_window"`
		HealthWindow  time.Duration `yaml:"health_window"`
		Profile       struct {
			LookbackHours  int           `yaml:"lookback_hours"`
			TickSize       string        `yaml:"tick_size"`
			MaxTrades      int           `yaml:"max_trades"`
			CollectTimeout time.Duration `yaml:"collect_timeout"`
		} `yaml:"profile"`
		// Detector estimation constants. These are provisional stand-ins
		// for values that should eventually come from consecutive-snapshot
		// deltas; they are configuration so thresholds stay testable.
		Detector struct {
			EstimatedFillRate         float64 `yaml:"estimated_fill_rate"`
			EstimatedRefillCount      float64 `yaml:"estimated_refill_count"`
			EstimatedMedianAbsorption float64 `yaml:"estimated_median_absorption"`
			EstimatedCancellationRate float64 `yaml:"estimated_cancellation_rate"`
		} `yaml:"detector"`
	} `yaml:"engine"`
	Cache struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      struct {
			OrderFlow time.Duration `yaml:"order_flow"`
			Profile   time.Duration `yaml:"profile"`
			Anomalies time.Duration `yaml:"anomalies"`
			Health    time.Duration `yaml:"health"`
		} `yaml:"ttl"`
	} `yaml:"cache"`
	Alerts struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		LogTopic     string   `yaml:"log_topic"` // aggregated error logs; empty disables
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
	} `yaml:"alerts"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Binance.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("BINANCE_WS_URL"); v != "" {
		c.Binance.WebSocketURL = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Alerts.Brokers = strings.Split(v, ",")
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Binance.WebSocketURL == "" {
		c.Binance.WebSocketURL = "wss://stream.binance.com:9443/ws"
	}
	if c.Binance.DepthLevels == 0 {
		c.Binance.DepthLevels = 20
	}
	if c.Binance.ReconnectFloor == 0 {
		c.Binance.ReconnectFloor = 1 * time.Second
	}
	if c.Binance.ReconnectCeil == 0 {
		c.Binance.ReconnectCeil = 60 * time.Second
	}
	if c.Binance.QueueSize == 0 {
		c.Binance.QueueSize = 1024
	}
	if c.Capture.BatchSize == 0 {
		c.Capture.BatchSize = 100
	}
	if c.Capture.BatchTimeout == 0 {
		c.Capture.BatchTimeout = 2 * time.Second
	}
	if c.Capture.BufferSize == 0 {
		c.Capture.BufferSize = 2000
	}
	if c.Engine.FlowWindow == 0 {
		c.Engine.FlowWindow = 60 * time.Second
	}
	if c.Engine.AnomalyWindow == 0 {
		c.Engine.AnomalyWindow = 60 * time.Second
	}
	if c.Engine.HealthWindow == 0 {
		c.Engine.HealthWindow = 300 * time.Second
	}
	if c.Engine.Profile.LookbackHours == 0 {
		c.Engine.Profile.LookbackHours = 4
	}
	if c.Engine.Profile.TickSize == "" {
		c.Engine.Profile.TickSize = "0.01"
	}
	if c.Engine.Profile.MaxTrades == 0 {
		c.Engine.Profile.MaxTrades = 1000
	}
	if c.Engine.Profile.CollectTimeout == 0 {
		c.Engine.Profile.CollectTimeout = 5 * time.Second
	}
	if c.Engine.Detector.EstimatedFillRate == 0 {
		c.Engine.Detector.EstimatedFillRate = 0.05
	}
	if c.Engine.Detector.EstimatedRefillCount == 0 {
		c.Engine.Detector.EstimatedRefillCount = 3
	}
	if c.Engine.Detector.EstimatedMedianAbsorption == 0 {
		c.Engine.Detector.EstimatedMedianAbsorption = 1.0
	}
	if c.Engine.Detector.EstimatedCancellationRate == 0 {
		c.Engine.Detector.EstimatedCancellationRate = 0.95
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Binance.Symbols) == 0 {
		return fmt.Errorf("binance.symbols cannot be empty")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Binance.ReconnectFloor > c.Binance.ReconnectCeil {
		return fmt.Errorf("binance.reconnect_floor must not exceed reconnect_ceil")
	}
	if c.Alerts.Enabled && len(c.Alerts.Brokers) == 0 {
		return fmt.Errorf("alerts.brokers cannot be empty when alerts are enabled")
	}
	return nil
}
