package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	JWT      JWTConfig
	Business BusinessConfig
	Dispatch DispatchConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds NATS event bus configuration
type NATSConfig struct {
	URL     string
	Enabled bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string
	Expiration int // in hours
}

// BusinessConfig holds fallback pricing values used when the pricing tables
// carry no active snapshot.
type BusinessConfig struct {
	PlatformFeePct      float64
	DriverCommissionPct float64
	CancellationFee     float64
	MinimumFare         float64
	PerKmRate           float64
	GatewayBaseURL      string
	GatewayKeyID        string
	GatewayKeySecret    string
}

// DispatchConfig holds matching and scheduling knobs.
type DispatchConfig struct {
	SearchRadiiKm      []float64
	MaxCandidates      int
	CreateLockTTL      time.Duration
	MatchLockTTL       time.Duration
	AcceptLockTTL      time.Duration
	SchedulerInterval  time.Duration
	StaleRideTimeout   time.Duration
	PromotionLookback  time.Duration
	ReminderThresholds []time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "ridedispatch"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConns:       getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:       getEnvAsInt("DB_MIN_CONNS", 5),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvAsBool("NATS_ENABLED", true),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			Expiration: getEnvAsInt("JWT_EXPIRATION", 24),
		},
		Business: BusinessConfig{
			PlatformFeePct:      getEnvAsFloat("PLATFORM_FEE_PCT", 0.20),
			DriverCommissionPct: getEnvAsFloat("DRIVER_COMMISSION_PCT", 0),
			CancellationFee:     getEnvAsFloat("CANCELLATION_FEE", 50),
			MinimumFare:         getEnvAsFloat("MINIMUM_FARE", 100),
			PerKmRate:           getEnvAsFloat("PER_KM_RATE", 12),
			GatewayBaseURL:      getEnv("GATEWAY_BASE_URL", "https://api.razorpay.com"),
			GatewayKeyID:        getEnv("GATEWAY_KEY_ID", ""),
			GatewayKeySecret:    getEnv("GATEWAY_KEY_SECRET", ""),
		},
		Dispatch: DispatchConfig{
			SearchRadiiKm:      getEnvAsFloatSlice("DISPATCH_SEARCH_RADII_KM", []float64{3, 6, 9, 12, 15, 20}),
			MaxCandidates:      getEnvAsInt("DISPATCH_MAX_CANDIDATES", 10),
			CreateLockTTL:      getEnvAsDuration("CREATE_LOCK_TTL", 5*time.Second),
			MatchLockTTL:       getEnvAsDuration("MATCH_LOCK_TTL", 30*time.Second),
			AcceptLockTTL:      getEnvAsDuration("ACCEPT_LOCK_TTL", 15*time.Second),
			SchedulerInterval:  getEnvAsDuration("SCHEDULER_INTERVAL", 5*time.Minute),
			StaleRideTimeout:   getEnvAsDuration("STALE_RIDE_TIMEOUT", 10*time.Minute),
			PromotionLookback:  getEnvAsDuration("PROMOTION_LOOKBACK", 15*time.Minute),
			ReminderThresholds: []time.Duration{60 * time.Minute, 30 * time.Minute, 5 * time.Minute},
		},
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the database connection URL used by the migration runner.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloatSlice(key string, defaultValue []float64) []float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		values = append(values, v)
	}
	return values
}
