package confs

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stresstest-server/logs"
)

// Config is the full runtime configuration of the server.
type Config struct {
	Server struct {
		Address string `mapstructure:"address"`
		Port    string `mapstructure:"port"`
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // log file prefix, empty for stdout only
	} `mapstructure:"logs"`

	Database DatabaseConfig `mapstructure:"database"`

	Auth struct {
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenTTL      time.Duration `mapstructure:"token_ttl"`
		JWKSURL       string        `mapstructure:"jwks_url"`
		Issuer        string        `mapstructure:"issuer"`
		Audience      string        `mapstructure:"audience"`
		AdminUser     string        `mapstructure:"admin_user"`
		AdminPassword string        `mapstructure:"admin_password"`
	} `mapstructure:"auth"`

	Telemetry struct {
		FlushInterval    time.Duration `mapstructure:"flush_interval"`
		BatteryThreshold int           `mapstructure:"battery_threshold"`
	} `mapstructure:"telemetry"`

	Tests struct {
		Versions []string `mapstructure:"versions"`
	} `mapstructure:"tests"`
}

// DatabaseConfig selects the record store backend.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres|mysql|sqlite|memory
	DSN      string `mapstructure:"dsn"`
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// LoadConfig loads environment variables from a .env file if present, layers
// an optional YAML file and defaults on top, and validates the result.
func LoadConfig() (*Config, error) {
	// Load .env if it exists; ignore error if file not found
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logs.Logger.Warnf("could not load .env: %v", err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Keep the DB_* variables the deployment already uses
	_ = v.BindEnv("database.url", "DATABASE_URL", "DB_URL")
	_ = v.BindEnv("database.host", "DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", "DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.user", "DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.name", "DATABASE_NAME", "DB_NAME")

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stresstest")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", "3536")

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")
	v.SetDefault("logs.file", "")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.issuer", "stresstest-server")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.admin_user", "")
	v.SetDefault("auth.admin_password", "")

	v.SetDefault("telemetry.flush_interval", 5*time.Minute)
	v.SetDefault("telemetry.battery_threshold", 0)

	v.SetDefault("tests.versions", []string{"v2.1.2", "v2.1.3", "v2.1.4", "v2.2.0"})
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("server.port must not be empty")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" && strings.TrimSpace(c.Auth.JWKSURL) == "" {
		return errors.New("auth.jwt_secret or auth.jwks_url must be set")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Telemetry.FlushInterval <= 0 {
		return errors.New("telemetry.flush_interval must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite", "memory", "":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}
