package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// драйверы хранилища
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Logging   string
	HTTPPort  string
	GRPCPort  string
	Store     StoreConfig
	Cache     CacheConfig
	Mongo     MongoConfig
	Kafka     KafkaConfig
	Rabbit    RabbitConfig
	NATS      NATSConfig
	Bank      BankConfig
	Token     TokenConfig
	Simulator SimulatorConfig
	Workers   int
	OTLP      string
}

type StoreConfig struct {
	Driver     string
	DSN        string
	SQLitePath string
}

type CacheConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

type MongoConfig struct {
	URI      string
	Database string
}

type KafkaConfig struct {
	Brokers        []string
	EventsTopic    string
	TelemetryTopic string
	GroupID        string
}

type RabbitConfig struct {
	URL string
}

type NATSConfig struct {
	URL     string
	Subject string
}

type BankConfig struct {
	URL     string
	Timeout time.Duration
}

type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

type SimulatorConfig struct {
	Schedule string
	Plots    []uint32
	Payers   []string
	Revenue  uint64
}

// ключ -> переменная окружения
var envs = map[string]string{
	"logging.level":         "AMPERE_LOGGING",
	"http.port":             "AMPERE_PORT",
	"grpc.port":             "AMPERE_GRPC_PORT",
	"store.driver":          "AMPERE_STORE",
	"store.dsn":             "AMPERE_DB",
	"store.sqlite_path":     "AMPERE_SQLITE_PATH",
	"cache.addr":            "AMPERE_CACHE_URL",
	"cache.username":        "AMPERE_CACHE_USER",
	"cache.password":        "AMPERE_CACHE_PASSWORD",
	"cache.db":              "AMPERE_CACHE_DB",
	"mongo.uri":             "AMPERE_MONGO",
	"mongo.database":        "AMPERE_MONGO_DB",
	"kafka.brokers":         "KAFKA_URL",
	"kafka.events_topic":    "KAFKA_EVENTS_TOPIC",
	"kafka.telemetry_topic": "KAFKA_TELEMETRY_TOPIC",
	"kafka.group_id":        "KAFKA_GROUP_ID",
	"rabbit.url":            "RABBIT_URL",
	"nats.url":              "NATS_URL",
	"nats.subject":          "NATS_SUBJECT",
	"bank.url":              "AMPERE_BANK_URL",
	"bank.timeout":          "AMPERE_BANK_TIMEOUT",
	"token.secret":          "AMPERE_TOKEN_SECRET",
	"token.ttl":             "AMPERE_TOKEN_TTL",
	"simulator.schedule":    "AMPERE_SIMULATOR_SCHEDULE",
	"simulator.plots":       "AMPERE_SIMULATOR_PLOTS",
	"simulator.payers":      "AMPERE_SIMULATOR_PAYERS",
	"simulator.revenue":     "AMPERE_SIMULATOR_REVENUE",
	"workers":               "AMPERE_WORKERS",
	"otel.endpoint":         "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Загрузка: переменные окружения, затем config.yaml (если есть), затем значения по умолчанию
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetDefault("logging.level", "development")
	v.SetDefault("http.port", "8080")
	v.SetDefault("grpc.port", "9090")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.sqlite_path", "amperequest.db")
	v.SetDefault("cache.db", 0)
	v.SetDefault("mongo.database", "amperequest")
	v.SetDefault("kafka.events_topic", "ledger_events")
	v.SetDefault("kafka.telemetry_topic", "meter_readings")
	v.SetDefault("kafka.group_id", "amperequest")
	v.SetDefault("nats.subject", "game.sessions")
	v.SetDefault("bank.timeout", 5*time.Second)
	v.SetDefault("token.ttl", 24*time.Hour)
	v.SetDefault("simulator.schedule", "@every 1m")
	v.SetDefault("simulator.revenue", 100)
	v.SetDefault("workers", 5)

	for key, env := range envs {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Logging:  v.GetString("logging.level"),
		HTTPPort: v.GetString("http.port"),
		GRPCPort: v.GetString("grpc.port"),
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("store.driver")),
			DSN:        v.GetString("store.dsn"),
			SQLitePath: v.GetString("store.sqlite_path"),
		},
		Cache: CacheConfig{
			Addr:     v.GetString("cache.addr"),
			Username: v.GetString("cache.username"),
			Password: v.GetString("cache.password"),
			DB:       v.GetInt("cache.db"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Kafka: KafkaConfig{
			Brokers:        list(v.GetString("kafka.brokers")),
			EventsTopic:    v.GetString("kafka.events_topic"),
			TelemetryTopic: v.GetString("kafka.telemetry_topic"),
			GroupID:        v.GetString("kafka.group_id"),
		},
		Rabbit: RabbitConfig{URL: v.GetString("rabbit.url")},
		NATS: NATSConfig{
			URL:     v.GetString("nats.url"),
			Subject: v.GetString("nats.subject"),
		},
		Bank: BankConfig{
			URL:     v.GetString("bank.url"),
			Timeout: v.GetDuration("bank.timeout"),
		},
		Token: TokenConfig{
			Secret: v.GetString("token.secret"),
			TTL:    v.GetDuration("token.ttl"),
		},
		Simulator: SimulatorConfig{
			Schedule: v.GetString("simulator.schedule"),
			Payers:   list(v.GetString("simulator.payers")),
			Revenue:  v.GetUint64("simulator.revenue"),
		},
		Workers: v.GetInt("workers"),
		OTLP:    v.GetString("otel.endpoint"),
	}
	for _, s := range list(v.GetString("simulator.plots")) {
		var id uint32
		if _, err := fmt.Sscan(s, &id); err != nil {
			return nil, fmt.Errorf("simulator plot %q: %w", s, err)
		}
		cfg.Simulator.Plots = append(cfg.Simulator.Plots, id)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("env AMPERE_DB is not set")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("env AMPERE_SQLITE_PATH is not set")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// Обязательная настройка для конкретного процесса
func Require(value, env string) error {
	if value == "" {
		return fmt.Errorf("env %s is not set", env)
	}
	return nil
}

func list(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
