package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Web       WebConfig       `yaml:"web"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Messaging MessagingConfig `yaml:"messaging"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Channel carries hub frames between processes.
	Channel string `yaml:"channel"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKeyHash is a bcrypt hash. Empty disables the check on mutating routes.
	APIKeyHash   string        `yaml:"api_key_hash"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongWait     time.Duration `yaml:"pong_wait"`
	WriteWait    time.Duration `yaml:"write_wait"`
	SendBuffer   int           `yaml:"send_buffer"`
	InboundRate  float64       `yaml:"inbound_rate"`
	InboundBurst int           `yaml:"inbound_burst"`
	RobotCache   int           `yaml:"robot_cache"`
}

type ScheduleConfig struct {
	Timezone    string `yaml:"timezone"`
	SlotMinutes int    `yaml:"slot_minutes"`
	PageSize    int    `yaml:"page_size"`
}

type TasksConfig struct {
	PollSpec     string        `yaml:"poll_spec"`
	Workers      int           `yaml:"workers"`
	BatchSize    int           `yaml:"batch_size"`
	Lease        time.Duration `yaml:"lease"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RetainFor    time.Duration `yaml:"retain_for"`
}

type MessagingConfig struct {
	Kafka               KafkaConfig   `yaml:"kafka"`
	EventsTopic         string        `yaml:"events_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	MQTT                MQTTConfig    `yaml:"mqtt"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	Port           int    `yaml:"port"`
	ClientID       string `yaml:"client_id"`
	TelemetryTopic string `yaml:"telemetry_topic"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "robofleet.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "robofleet",
				User:     "robofleet",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
			Channel:  "robofleet:hub",
		},
		Web: WebConfig{
			Host:         "0.0.0.0",
			Port:         8090,
			PingInterval: 25 * time.Second,
			PongWait:     60 * time.Second,
			WriteWait:    10 * time.Second,
			SendBuffer:   64,
			InboundRate:  20,
			InboundBurst: 40,
			RobotCache:   256,
		},
		Schedule: ScheduleConfig{
			Timezone:    "Local",
			SlotMinutes: 3,
			PageSize:    10,
		},
		Tasks: TasksConfig{
			PollSpec:     "@every 1s",
			Workers:      4,
			BatchSize:    50,
			Lease:        2 * time.Minute,
			MaxAttempts:  10,
			RetryBackoff: 5 * time.Second,
			RetainFor:    7 * 24 * time.Hour,
		},
		Messaging: MessagingConfig{
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
			},
			EventsTopic:         "robofleet.events",
			OutboxDrainInterval: 5 * time.Second,
			MQTT: MQTTConfig{
				Broker:         "localhost",
				Port:           1883,
				ClientID:       "robofleet",
				TelemetryTopic: "robots/+/telemetry",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves the configured schedule timezone, falling back to local time.
func (c *ScheduleConfig) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SlotLength is the fixed duration of every booking window.
func (c *ScheduleConfig) SlotLength() time.Duration {
	if c.SlotMinutes <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(c.SlotMinutes) * time.Minute
}
