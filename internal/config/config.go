package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Engine   Engine   `mapstructure:"engine"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Vault    Vault    `mapstructure:"vault"`
}

// Binance holds the configuration for the Binance USDT-M futures API.
// Credentials are not configured here; they are resolved per user from the vault.
type Binance struct {
	BaseURL        string  `mapstructure:"base_url"`
	StreamURL      string  `mapstructure:"stream_url"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	RecvWindow     int64   `mapstructure:"recv_window"`
}

// Engine holds the per-bot runtime parameters shared by all users.
type Engine struct {
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
	WindowSize         int           `mapstructure:"window_size"`
	FastPeriod         int           `mapstructure:"fast_period"`
	SlowPeriod         int           `mapstructure:"slow_period"`
	VerifyConnectivity bool          `mapstructure:"verify_connectivity"`
	CancelOrdersOnStop bool          `mapstructure:"cancel_orders_on_stop"`
}

// Server holds the configuration for the control API.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Vault holds the master key used to encrypt exchange credentials (base64, 32 bytes).
type Vault struct {
	MasterKey string `mapstructure:"master_key"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(viper.GetViper())

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("binance.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.stream_url", "wss://fstream.binance.com/ws")
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.recv_window", 5000)   // ms

	v.SetDefault("engine.reconnect_delay", 5*time.Second)
	v.SetDefault("engine.window_size", 50)
	v.SetDefault("engine.fast_period", 9)
	v.SetDefault("engine.slow_period", 21)
	v.SetDefault("engine.verify_connectivity", true)
	v.SetDefault("engine.cancel_orders_on_stop", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size", 100) // MB
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 28) // days

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "futures_bot.db")
	// registered so VAULT_MASTER_KEY is picked up without a config entry
	v.SetDefault("vault.master_key", "")
}
