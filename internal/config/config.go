package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Solana      SolanaConfig      `mapstructure:"solana"`
	Indexer     IndexerConfig     `mapstructure:"indexer"`
	Transaction TransactionConfig `mapstructure:"transaction"`
	Journal     JournalConfig     `mapstructure:"journal"`
	Log         LogConfig         `mapstructure:"log"`
}

// SolanaConfig holds Solana-specific configuration
type SolanaConfig struct {
	RPC        string `mapstructure:"rpc"`
	Network    string `mapstructure:"network"`
	Timeout    int    `mapstructure:"timeout"` // in seconds
	Commitment string `mapstructure:"commitment"`
}

// IndexerConfig holds the compression indexer (Photon) configuration.
type IndexerConfig struct {
	URL               string  `mapstructure:"url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxPages          int     `mapstructure:"max_pages"`
}

// TransactionConfig controls instruction sizing and submission.
type TransactionConfig struct {
	MaxInputsPerInstruction int    `mapstructure:"max_inputs_per_instruction"`
	MaxSelection            int    `mapstructure:"max_selection"`
	ComputeUnitPrice        uint64 `mapstructure:"compute_unit_price"` // micro-lamports
	ConfirmTimeout          int    `mapstructure:"confirm_timeout"`    // in seconds
	PollInterval            int    `mapstructure:"poll_interval"`      // in milliseconds
}

// JournalConfig selects where submitted transactions are recorded.
type JournalConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Type     string         `mapstructure:"type"` // postgres, mongodb, mysql or memory
	Postgres PostgresConfig `mapstructure:"postgres"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // in seconds
}

// MongoDBConfig holds MongoDB connection settings.
type MongoDBConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	MaxPoolSize    uint64 `mapstructure:"max_pool_size"`
	MinPoolSize    uint64 `mapstructure:"min_pool_size"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // in seconds
}

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // in seconds
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Solana: SolanaConfig{
			RPC:        "",
			Network:    "devnet",
			Timeout:    30,
			Commitment: "confirmed",
		},
		Indexer: IndexerConfig{
			RequestsPerSecond: 10,
			Burst:             5,
			MaxPages:          100,
		},
		Transaction: TransactionConfig{
			MaxInputsPerInstruction: 8,
			MaxSelection:            4,
			ConfirmTimeout:          60,
			PollInterval:            500,
		},
		Journal: JournalConfig{
			Enabled: false,
			Type:    "postgres",
			Postgres: PostgresConfig{
				Host:         "localhost",
				Port:         5432,
				Database:     "ctoken",
				SSLMode:      "disable",
				MaxOpenConns: 10,
				MaxIdleConns: 2,
			},
			MongoDB: MongoDBConfig{
				URI:            "mongodb://localhost:27017",
				Database:       "ctoken",
				MaxPoolSize:    10,
				ConnectTimeout: 10,
			},
			MySQL: MySQLConfig{
				Host:         "localhost",
				Port:         3306,
				Database:     "ctoken",
				MaxOpenConns: 10,
				MaxIdleConns: 2,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.New(), configPath)
}

// LoadWith loads configuration through the given viper instance, so callers
// that bound CLI flags to it see those values too.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".ctoken")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	// Environment variables
	v.SetEnvPrefix("CTOKEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Transaction.MaxInputsPerInstruction <= 0 {
		return fmt.Errorf("transaction.max_inputs_per_instruction must be positive")
	}
	if c.Transaction.MaxSelection <= 0 || c.Transaction.MaxSelection > c.Transaction.MaxInputsPerInstruction {
		return fmt.Errorf("transaction.max_selection must be between 1 and %d", c.Transaction.MaxInputsPerInstruction)
	}
	if c.Indexer.MaxPages <= 0 {
		return fmt.Errorf("indexer.max_pages must be positive")
	}
	if c.Journal.Enabled {
		switch c.Journal.Type {
		case "postgres", "mongodb", "mysql", "memory":
		default:
			return fmt.Errorf("unsupported journal type: %s", c.Journal.Type)
		}
	}
	return nil
}

// GetRPCEndpoint returns the RPC endpoint for the configured network
func (c *SolanaConfig) GetRPCEndpoint() string {
	if c.RPC != "" {
		return c.RPC
	}

	switch c.Network {
	case "mainnet", "mainnet-beta":
		return "https://api.mainnet-beta.solana.com"
	case "testnet":
		return "https://api.testnet.solana.com"
	case "localnet", "localhost":
		return "http://localhost:8899"
	default:
		return "https://api.devnet.solana.com"
	}
}

// GetTimeout returns the RPC timeout as a duration.
func (c *SolanaConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetIndexerEndpoint returns the indexer URL, falling back to the RPC endpoint
// since most providers serve both on the same URL.
func (c *Config) GetIndexerEndpoint() string {
	if c.Indexer.URL != "" {
		return c.Indexer.URL
	}
	if c.Solana.Network == "localnet" || c.Solana.Network == "localhost" {
		return "http://localhost:8784"
	}
	return c.Solana.GetRPCEndpoint()
}

// GetConfirmTimeout returns the confirmation timeout as a duration.
func (c *TransactionConfig) GetConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeout) * time.Second
}

// GetPollInterval returns the status poll interval as a duration.
func (c *TransactionConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}
