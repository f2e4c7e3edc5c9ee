package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Queue      QueueConfig      `yaml:"queue"`
	Email      EmailConfig      `yaml:"email"`
	SMS        SMSConfig        `yaml:"sms"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	AgencyName  string `yaml:"agency_name"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	TTLHours int    `yaml:"ttl_hours"`
}

type StorageConfig struct {
	ArtifactsPath string `yaml:"artifacts_path"`
}

type QueueConfig struct {
	MaxAttempts        int     `yaml:"max_attempts"`
	InitialBackoffMS   int     `yaml:"initial_backoff_ms"`
	MaxBackoffMS       int     `yaml:"max_backoff_ms"`
	BackoffFactor      float64 `yaml:"backoff_factor"`
	RetainCompleted    int     `yaml:"retain_completed"`
	PollIntervalMS     int     `yaml:"poll_interval_ms"`
	BatchSize          int     `yaml:"batch_size"`
	StaleActiveMinutes int     `yaml:"stale_active_minutes"`
}

type EmailConfig struct {
	APIURL         string  `yaml:"api_url"`
	APIKey         string  `yaml:"api_key"`
	From           string  `yaml:"from"`
	FromName       string  `yaml:"from_name"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RPS            float64 `yaml:"rps"`
	Burst          int     `yaml:"burst"`
}

type SMSConfig struct {
	APIURL         string  `yaml:"api_url"`
	APIKey         string  `yaml:"api_key"`
	Sender         string  `yaml:"sender"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RPS            float64 `yaml:"rps"`
	Burst          int     `yaml:"burst"`
}

type TelegramConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BotToken       string `yaml:"bot_token"`
	ManagersChatID int64  `yaml:"managers_chat_id"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment wins either way.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references before parsing so secrets stay out of YAML.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "rezerva"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.AgencyName == "" {
		c.App.AgencyName = "Rezerva Travel"
	}
	if c.Storage.ArtifactsPath == "" {
		c.Storage.ArtifactsPath = "data/artifacts"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "data/exports"
	}

	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.InitialBackoffMS <= 0 {
		c.Queue.InitialBackoffMS = 2000
	}
	if c.Queue.MaxBackoffMS <= 0 {
		c.Queue.MaxBackoffMS = 60000
	}
	if c.Queue.BackoffFactor <= 0 {
		c.Queue.BackoffFactor = 2
	}
	if c.Queue.RetainCompleted <= 0 {
		c.Queue.RetainCompleted = 100
	}
	if c.Queue.PollIntervalMS <= 0 {
		c.Queue.PollIntervalMS = 2000
	}
	if c.Queue.BatchSize <= 0 {
		c.Queue.BatchSize = 20
	}
	if c.Queue.StaleActiveMinutes <= 0 {
		c.Queue.StaleActiveMinutes = 5
	}

	if c.Email.TimeoutSeconds <= 0 {
		c.Email.TimeoutSeconds = 15
	}
	if c.SMS.TimeoutSeconds <= 0 {
		c.SMS.TimeoutSeconds = 10
	}

	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.TTLHours <= 0 {
		c.Redis.TTLHours = 24
	}

	if c.Monitoring.PrometheusPort <= 0 {
		c.Monitoring.PrometheusPort = 9091
	}
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Email.APIURL == "" || c.Email.APIKey == "" {
		return errors.New("email provider api url and api key are required")
	}
	if c.Email.From == "" {
		return errors.New("email sender address is required")
	}
	if c.SMS.APIURL == "" || c.SMS.APIKey == "" {
		return errors.New("sms gateway api url and api key are required")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram alerting enabled but bot token is missing")
	}
	return nil
}

// RetryInitialDelay returns the configured backoff base as a duration.
func (c *QueueConfig) RetryInitialDelay() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

// RetryMaxDelay returns the configured backoff ceiling as a duration.
func (c *QueueConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

// PollInterval returns the queue poll interval as a duration.
func (c *QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// StaleActiveAfter returns the orphaned-job reclaim age as a duration.
func (c *QueueConfig) StaleActiveAfter() time.Duration {
	return time.Duration(c.StaleActiveMinutes) * time.Minute
}
