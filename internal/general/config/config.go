package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Location provider names.
const (
	ProviderReplay = "replay"
	ProviderRedis  = "redis"
	ProviderKafka  = "kafka"
)

type Config struct {
	Dispatch struct {
		URL           string        `mapstructure:"url"`
		Token         string        `mapstructure:"token"`
		AuthHandshake bool          `mapstructure:"auth_handshake"`
		ReconnectMin  time.Duration `mapstructure:"reconnect_min"`
		ReconnectMax  time.Duration `mapstructure:"reconnect_max"`
		PingPeriod    time.Duration `mapstructure:"ping_period"`
		PongWait      time.Duration `mapstructure:"pong_wait"`
		WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"dispatch"`
	Identity struct {
		BaseURL      string        `mapstructure:"base_url"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"identity"`
	Location struct {
		Provider       string        `mapstructure:"provider"`
		TrackFile      string        `mapstructure:"track_file"`
		ReplayInterval time.Duration `mapstructure:"replay_interval"`
		MinInterval    time.Duration `mapstructure:"min_interval"`
		RedisAddr      string        `mapstructure:"redis_addr"`
		RedisPassword  string        `mapstructure:"redis_password"`
		RedisPoll      time.Duration `mapstructure:"redis_poll"`
		RedisGeoKey    string        `mapstructure:"redis_geo_key"`
		KafkaBrokers   []string      `mapstructure:"kafka_brokers"`
		KafkaTopic     string        `mapstructure:"kafka_topic"`
		KafkaGroup     string        `mapstructure:"kafka_group"`
	} `mapstructure:"location"`
	Session struct {
		MaxQueuedOffers  int  `mapstructure:"max_queued_offers"`
		FinishActiveRide bool `mapstructure:"finish_active_ride"`
		SeedPending      bool `mapstructure:"seed_pending"`
		SinkBuffer       int  `mapstructure:"sink_buffer"`
	} `mapstructure:"session"`
	API struct {
		Port   int    `mapstructure:"port"`
		Secret string `mapstructure:"secret"`
	} `mapstructure:"api"`
	Journal struct {
		Enabled    bool   `mapstructure:"enabled"`
		Host       string `mapstructure:"host"`
		Port       int    `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		Name       string `mapstructure:"database"`
		Migrations string `mapstructure:"migrations"`
	} `mapstructure:"journal"`
	Telemetry struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
	} `mapstructure:"telemetry"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// LoadFromFile loads config from a YAML file, overlays AGENT_* environment variables (a local .env
// file is honoured), applies defaults, and validates required fields. A missing file is not an
// error: environment and defaults are used alone.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Location.KafkaBrokers = splitAndTrim(cfg.Location.KafkaBrokers)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults registers every key with its default so env overrides resolve for all of them.
func applyDefaults(v *viper.Viper) {
	// Dispatch
	v.SetDefault("dispatch.url", "ws://localhost:8080/ws/drivers")
	v.SetDefault("dispatch.token", "")
	v.SetDefault("dispatch.auth_handshake", true)
	v.SetDefault("dispatch.reconnect_min", time.Second)
	v.SetDefault("dispatch.reconnect_max", 30*time.Second)
	v.SetDefault("dispatch.ping_period", 30*time.Second)
	v.SetDefault("dispatch.pong_wait", 60*time.Second)
	v.SetDefault("dispatch.write_timeout", 5*time.Second)

	// Identity
	v.SetDefault("identity.base_url", "http://localhost:5000")
	v.SetDefault("identity.poll_interval", 30*time.Second)
	v.SetDefault("identity.timeout", 10*time.Second)

	// Location
	v.SetDefault("location.provider", ProviderReplay)
	v.SetDefault("location.track_file", "./config/track.csv")
	v.SetDefault("location.replay_interval", 3*time.Second)
	v.SetDefault("location.min_interval", 0)
	v.SetDefault("location.redis_addr", "localhost:6379")
	v.SetDefault("location.redis_password", "")
	v.SetDefault("location.redis_poll", 2*time.Second)
	v.SetDefault("location.redis_geo_key", "drivers_geo")
	v.SetDefault("location.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("location.kafka_topic", "driver-locations")
	v.SetDefault("location.kafka_group", "")

	// Session
	v.SetDefault("session.max_queued_offers", 5)
	v.SetDefault("session.sink_buffer", 256)
	v.SetDefault("session.finish_active_ride", false)
	v.SetDefault("session.seed_pending", true)

	// API
	v.SetDefault("api.port", 3005)
	v.SetDefault("api.secret", "")

	// Journal
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.host", "localhost")
	v.SetDefault("journal.port", 5432)
	v.SetDefault("journal.user", "")
	v.SetDefault("journal.password", "")
	v.SetDefault("journal.database", "")
	v.SetDefault("journal.migrations", "file://migrations")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.host", "localhost")
	v.SetDefault("telemetry.port", 5672)
	v.SetDefault("telemetry.user", "")
	v.SetDefault("telemetry.password", "")

	v.SetDefault("log.level", "info")
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// Dispatch
	if u, err := url.Parse(c.Dispatch.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		problems = append(problems, "dispatch.url must be a ws:// or wss:// URL")
	}
	if c.Dispatch.ReconnectMin <= 0 {
		problems = append(problems, "dispatch.reconnect_min must be > 0")
	}
	if c.Dispatch.ReconnectMax < c.Dispatch.ReconnectMin {
		problems = append(problems, "dispatch.reconnect_max must be >= dispatch.reconnect_min")
	}
	if c.Dispatch.PongWait <= c.Dispatch.PingPeriod {
		problems = append(problems, "dispatch.pong_wait must be greater than dispatch.ping_period")
	}

	// Identity
	if u, err := url.Parse(c.Identity.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		problems = append(problems, "identity.base_url must be an http:// or https:// URL")
	}
	if c.Identity.PollInterval <= 0 {
		problems = append(problems, "identity.poll_interval must be > 0")
	}

	// Location
	switch c.Location.Provider {
	case ProviderReplay:
		if c.Location.TrackFile == "" {
			problems = append(problems, "location.track_file is required for the replay provider")
		}
		if c.Location.ReplayInterval <= 0 {
			problems = append(problems, "location.replay_interval must be > 0")
		}
	case ProviderRedis:
		if c.Location.RedisAddr == "" {
			problems = append(problems, "location.redis_addr is required for the redis provider")
		}
		if c.Location.RedisPoll <= 0 {
			problems = append(problems, "location.redis_poll must be > 0")
		}
	case ProviderKafka:
		if len(c.Location.KafkaBrokers) == 0 {
			problems = append(problems, "location.kafka_brokers is required for the kafka provider")
		}
		if c.Location.KafkaTopic == "" {
			problems = append(problems, "location.kafka_topic is required for the kafka provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("location.provider must be one of %s|%s|%s", ProviderReplay, ProviderRedis, ProviderKafka))
	}
	if c.Location.MinInterval < 0 {
		problems = append(problems, "location.min_interval must be >= 0")
	}

	// Session
	if c.Session.MaxQueuedOffers < 0 {
		problems = append(problems, "session.max_queued_offers must be >= 0")
	}
	if c.Session.SinkBuffer <= 0 {
		problems = append(problems, "session.sink_buffer must be > 0")
	}

	// API
	if c.API.Port <= 0 || c.API.Port > 65535 {
		problems = append(problems, "api.port must be in 1..65535")
	}

	// Journal
	if c.Journal.Enabled {
		if c.Journal.Port <= 0 || c.Journal.Port > 65535 {
			problems = append(problems, "journal.port must be in 1..65535")
		}
		if c.Journal.User == "" {
			problems = append(problems, "journal.user is required")
		}
		if c.Journal.Name == "" {
			problems = append(problems, "journal.database is required")
		}
	}

	// Telemetry
	if c.Telemetry.Enabled {
		if c.Telemetry.Port <= 0 || c.Telemetry.Port > 65535 {
			problems = append(problems, "telemetry.port must be in 1..65535")
		}
		if c.Telemetry.User == "" {
			problems = append(problems, "telemetry.user is required")
		}
		if c.Telemetry.Password == "" {
			problems = append(problems, "telemetry.password is required")
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// splitAndTrim flattens comma-separated entries (env values arrive as one string).
func splitAndTrim(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, r := range strings.Split(raw, ",") {
			if r = strings.TrimSpace(r); r != "" {
				out = append(out, r)
			}
		}
	}
	return out
}
