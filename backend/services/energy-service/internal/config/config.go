package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "gridcast/backend/libs/config"
	libdb "gridcast/backend/libs/db"
)

// SourceConfig selects where readings come from.
type SourceConfig struct {
	Mode         string        `yaml:"mode" env:"SOURCE_MODE"`
	SerialPort   string        `yaml:"serial_port" env:"SERIAL_PORT"`
	BaudRate     int           `yaml:"baud_rate" env:"BAUD_RATE"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERIAL_READ_TIMEOUT"`
	MockInterval time.Duration `yaml:"mock_interval" env:"MOCK_INTERVAL"`
}

// DatabaseConfig holds either a DSN or its parts.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn" env:"DATABASE_DSN"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Name     string `yaml:"name" env:"DB_NAME"`
}

type ForecastConfig struct {
	ModelPath       string        `yaml:"model_path" env:"MODEL_PATH"`
	Window          int           `yaml:"window" env:"REALTIME_WINDOW"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"FORECAST_CACHE_TTL"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"REFRESH_INTERVAL"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type PublishConfig struct {
	Backend      string   `yaml:"backend" env:"PUBLISH_BACKEND"`
	MQTTBroker   string   `yaml:"mqtt_broker" env:"MQTT_BROKER"`
	MQTTClientID string   `yaml:"mqtt_client_id" env:"MQTT_CLIENT_ID"`
	KafkaBrokers []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS"`
	KafkaTopic   string   `yaml:"kafka_topic" env:"KAFKA_TOPIC"`
}

type HTTPConfig struct {
	Port           string   `yaml:"port" env:"HTTP_PORT"`
	MetricsPort    string   `yaml:"metrics_port" env:"METRICS_PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

type AuthConfig struct {
	JWTSecret            string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL             time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	OperatorUser         string        `yaml:"operator_user" env:"OPERATOR_USER"`
	OperatorPasswordHash string        `yaml:"operator_password_hash" env:"OPERATOR_PASSWORD_HASH"`
	BcryptCost           int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
}

// Config defines energy service configuration shared by both binaries.
type Config struct {
	Station  string         `yaml:"station" env:"STATION"`
	DataDir  string         `yaml:"data_dir" env:"DATA_DIR"`
	Source   SourceConfig   `yaml:"source"`
	Database DatabaseConfig `yaml:"database"`
	Forecast ForecastConfig `yaml:"forecast"`
	Redis    RedisConfig    `yaml:"redis"`
	Publish  PublishConfig  `yaml:"publish"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Station: "station01",
		DataDir: ".",
		Source: SourceConfig{
			Mode:         "mock",
			SerialPort:   "/dev/ttyACM0",
			BaudRate:     9600,
			ReadTimeout:  time.Second,
			MockInterval: time.Second,
		},
		Database: DatabaseConfig{Port: 5432},
		Forecast: ForecastConfig{
			Window:          120,
			CacheTTL:        10 * time.Minute,
			RefreshInterval: 10 * time.Second,
		},
		Publish: PublishConfig{
			Backend:      "none",
			MQTTClientID: "gridcast-acquisition",
			KafkaTopic:   "gridcast.readings",
		},
		HTTP: HTTPConfig{
			Port:        "8090",
			MetricsPort: "9100",
		},
		Auth: AuthConfig{
			TokenTTL:     time.Hour,
			OperatorUser: "operator",
		},
	}
}

// Load configuration using shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	cfg.Station = strings.TrimSpace(cfg.Station)
	if cfg.Station == "" {
		return nil, errors.New("config: station required")
	}
	if cfg.DSN() == "" {
		return nil, errors.New("config: database dsn or DB_HOST required")
	}
	return cfg, nil
}

// LoadAcquisition loads and validates the acquisition settings.
func LoadAcquisition() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Source.Mode) {
	case "live":
		if strings.TrimSpace(cfg.Source.SerialPort) == "" {
			return nil, errors.New("config: serial port required in live mode")
		}
		if cfg.Source.BaudRate <= 0 {
			return nil, fmt.Errorf("config: invalid baud rate %d", cfg.Source.BaudRate)
		}
	case "", "mock":
	default:
		return nil, fmt.Errorf("config: unknown source mode %q", cfg.Source.Mode)
	}
	return cfg, nil
}

// LoadAuth loads only the operator login settings, without the station or database
// checks of Load.
func LoadAuth() (AuthConfig, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return AuthConfig{}, err
	}
	return cfg.Auth, nil
}

// LoadDashboard loads and validates the dashboard API settings.
func LoadDashboard() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Forecast.ModelPath) == "" {
		return nil, errors.New("config: model path required")
	}
	if cfg.Forecast.RefreshInterval <= 0 {
		return nil, errors.New("config: refresh interval must be positive")
	}
	return cfg, nil
}

// DSN returns DATABASE_DSN or one built from the DB_* parts.
func (c *Config) DSN() string {
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn
	}
	return libdb.Credentials{
		User:     c.Database.User,
		Password: c.Database.Password,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Name:     c.Database.Name,
	}.DSN()
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	return address(c.HTTP.Port, "8090")
}

// MetricsAddress returns the acquisition metrics listener, or "" when disabled.
func (c *Config) MetricsAddress() string {
	if strings.TrimSpace(c.HTTP.MetricsPort) == "" || c.HTTP.MetricsPort == "0" {
		return ""
	}
	return address(c.HTTP.MetricsPort, "")
}

func address(port, fallback string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		port = fallback
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
