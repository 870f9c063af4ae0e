package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds the application's configuration.
type Config struct {
	Port         string
	DatabasePath string
	Location     *time.Location
	LogLevel     slog.Level

	MQTTBrokerURL   string
	MQTTTopicPrefix string
	MQTTUsername    string
	MQTTPassword    string
	MQTTClientID    string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	CORSAllowedOrigins []string

	Influx InfluxConfig
	Redis  RedisConfig
}

// InfluxConfig configures the optional reading archive.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether the archive should be opened.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// RedisConfig configures the optional presence cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether the presence cache should be opened.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// LoadConfig loads the configuration from a .env file, if present, and the
// process environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on system environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:            get("PORT", "3000"),
		DatabasePath:    get("DATABASE_PATH", "relaysync.db"),
		MQTTBrokerURL:   get("MQTT_BROKER_URL", ""),
		MQTTTopicPrefix: strings.TrimSuffix(get("MQTT_TOPIC_PREFIX", ""), "/"),
		MQTTUsername:    get("MQTT_USERNAME", ""),
		MQTTPassword:    get("MQTT_PASSWORD", ""),
		MQTTClientID:    get("MQTT_CLIENT_ID", "relaysync-"+uuid.NewString()),
		JWTSecret:       get("JWT_SECRET", ""),
		JWTIssuer:       get("JWT_ISSUER", "relaysync"),
		JWTAudience:     get("JWT_AUDIENCE", "relaysync-api"),
		Influx: InfluxConfig{
			URL:    get("INFLUXDB_URL", ""),
			Token:  get("INFLUXDB_TOKEN", ""),
			Org:    get("INFLUXDB_ORG", ""),
			Bucket: get("INFLUXDB_BUCKET", "sensor_readings"),
		},
		Redis: RedisConfig{
			Addr:     get("REDIS_ADDR", ""),
			Password: get("REDIS_PASSWORD", ""),
		},
	}

	for _, origin := range strings.Split(get("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if raw := get("REDIS_DB", "0"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("REDIS_DB must be an integer: %w", err)
		}
		cfg.Redis.DB = db
	}

	loc, err := time.LoadLocation(get("TZ_LOCATION", "Asia/Jakarta"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TZ_LOCATION: %w", err)
	}
	cfg.Location = loc

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if cfg.MQTTBrokerURL == "" || cfg.MQTTTopicPrefix == "" {
		return Config{}, fmt.Errorf("MQTT configuration is incomplete. Please set MQTT_BROKER_URL and MQTT_TOPIC_PREFIX environment variables")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.Influx.Enabled() && (cfg.Influx.Token == "" || cfg.Influx.Org == "") {
		return Config{}, fmt.Errorf("InfluxDB configuration is incomplete. Please set INFLUXDB_URL, INFLUXDB_TOKEN, and INFLUXDB_ORG environment variables")
	}
	return cfg, nil
}
