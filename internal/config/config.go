package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	defaultDBPath = "./dev.db"
	defaultAddr   = ":8080"
)

// Config holds application configuration from an optional YAML file and
// SHOP_* environment variables.
type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	DB struct {
		Path string
	} `mapstructure:"db"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	// Pricing seeds the rate card on first start; the stored rate card wins after that.
	Pricing struct {
		LaborRate          float64 `mapstructure:"labor_rate"`
		CNCRate            float64 `mapstructure:"cnc_rate"`
		PrinterRate        float64 `mapstructure:"printer_rate"`
		MaterialMultiplier float64 `mapstructure:"material_multiplier"`
		MarkupPercent      float64 `mapstructure:"markup_percent"`
		Currency           string
	} `mapstructure:"pricing"`
}

// Load reads .env from the working directory and the file named by
// SHOP_CONFIG, if any.
func Load() (Config, error) {
	// Best-effort: production should use real env injection.
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return LoadFile(os.Getenv("SHOP_CONFIG"))
}

// LoadFile builds the configuration from defaults, the YAML file at path
// (skipped when empty) and the environment.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("app.env", "dev")
	v.SetDefault("http.addr", defaultAddr)
	v.SetDefault("db.path", defaultDBPath)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("pricing.labor_rate", 0.0)
	v.SetDefault("pricing.cnc_rate", 0.0)
	v.SetDefault("pricing.printer_rate", 0.0)
	v.SetDefault("pricing.material_multiplier", 1.25)
	v.SetDefault("pricing.markup_percent", 0.0)
	v.SetDefault("pricing.currency", "USD")

	v.SetEnvPrefix("SHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Older deployments set DB_PATH and PORT directly.
	if err := v.BindEnv("db.path", "SHOP_DB_PATH", "DB_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind db.path: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if c.HTTP.Addr == defaultAddr {
		if port := os.Getenv("PORT"); port != "" {
			c.HTTP.Addr = ":" + port
		}
	}
	return c, nil
}

// Warnings lists settings that load fine but leave features disabled.
func (c Config) Warnings() []string {
	var out []string
	if c.Pricing.LaborRate <= 0 {
		out = append(out, "pricing.labor_rate is not set; reverse quotes fall back to forward quotes")
	}
	if c.Pricing.MaterialMultiplier <= 0 {
		out = append(out, "pricing.material_multiplier is not positive; 1.25 is used")
	}
	return out
}

// loadDotEnv loads KEY=VALUE pairs into the process environment without
// overwriting variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
