package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relayer
type Config struct {
	Database Database
	Ethereum Ethereum
	Stellar  Stellar
	API      API
	Relayer  Relayer
}

// Database configuration
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds the lib/pq connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Ethereum configuration
type Ethereum struct {
	HTTPUrl                   string
	LimitOrderProtocolAddress string
	EscrowAddress             string
	ChainID                   int64
	StartBlock                uint64        // 0 means start at the current head
	PollInterval              time.Duration // log polling cadence
}

// Stellar configuration
type Stellar struct {
	RPCUrl          string
	ContractID      string // C... strkey of the escrow contract
	PollInterval    time.Duration
	BackfillLedgers uint32 // ledgers to look back on startup
}

// API configuration
type API struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Relayer configuration
type Relayer struct {
	Resolvers       []string // resolver base URLs, comma separated in env
	RetentionWindow time.Duration
	IntakeBuffer    int
	LogLevel        string
}

// Load loads configuration from environment variables. A .env file is
// applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Database: LoadDatabase(),
		Ethereum: Ethereum{
			HTTPUrl:                   getEnvRequired("ETH_HTTP_URL"),
			LimitOrderProtocolAddress: getEnvRequired("ETH_LIMIT_ORDER_PROTOCOL_ADDRESS"),
			EscrowAddress:             getEnvRequired("ETH_ESCROW_ADDRESS"),
			ChainID:                   getEnvInt64("ETH_CHAIN_ID", 1),
			StartBlock:                getEnvUint64("ETH_START_BLOCK", 0),
			PollInterval:              getEnvDuration("ETH_POLL_INTERVAL", 2*time.Second),
		},
		Stellar: Stellar{
			RPCUrl:          getEnvRequired("STELLAR_RPC_URL"),
			ContractID:      getEnvRequired("STELLAR_CONTRACT_ID"),
			PollInterval:    getEnvDuration("STELLAR_POLL_INTERVAL", 3*time.Second),
			BackfillLedgers: uint32(getEnvUint64("STELLAR_BACKFILL_LEDGERS", 2000)),
		},
		API: API{
			Port:            getEnvInt("API_PORT", 8080),
			Host:            getEnv("API_HOST", "localhost"),
			ReadTimeout:     getEnvDuration("API_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("API_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvDuration("API_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Relayer: Relayer{
			Resolvers:       getEnvList("RELAYER_RESOLVERS"),
			RetentionWindow: getEnvDuration("RELAYER_RETENTION_WINDOW", 24*time.Hour),
			IntakeBuffer:    getEnvInt("RELAYER_INTAKE_BUFFER", 256),
			LogLevel:        getEnv("RELAYER_LOG_LEVEL", "info"),
		},
	}, nil
}

// LoadDatabase loads only the database section, for commands that touch
// nothing but Postgres.
func LoadDatabase() Database {
	_ = godotenv.Load()

	return Database{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "relayer"),
		Password: getEnvRequired("DB_PASSWORD"),
		DBName:   getEnv("DB_NAME", "relayer"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("Required environment variable " + key + " is not set")
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
