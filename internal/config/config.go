package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBDriver string // "mysql" | "postgres" | "sqlite" | "memory"

	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSSLMode  string

	SQLitePath string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// JWT
	JWTSecret string
	JWTTTL    time.Duration

	// Admin
	AdminUserIDs []string

	// Playback
	CrowdSkipCooldown    time.Duration
	DefaultLameThreshold int

	// Caching and presence
	PresenceTTL  time.Duration
	RoomCacheTTL time.Duration

	// Resolver
	ResolverTimeout  time.Duration
	ResolverCacheTTL time.Duration

	// Security
	RateLimitRequests int
	RateLimitDuration time.Duration

	// CORS
	AllowedOrigins []string
}

func New() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		DBDriver: getEnv("DB_DRIVER", "mysql"),

		MySQLHost:     getEnv("MYSQL_HOST", "localhost"),
		MySQLPort:     getEnv("MYSQL_PORT", "3306"),
		MySQLUser:     getEnv("MYSQL_USER", "root"),
		MySQLPassword: getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase: getEnv("MYSQL_DATABASE", "listening_room"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDatabase: getEnv("POSTGRES_DATABASE", "listening_room"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		SQLitePath: getEnv("SQLITE_PATH", "listening_room.db"),

		// Redis
		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Kafka
		KafkaBrokers: getEnvAsSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "room-changes"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "listening-room-server"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),
		JWTTTL:    getEnvAsDuration("JWT_TTL", "24h"),

		// Admin
		AdminUserIDs: getEnvAsSlice("ADMIN_USER_IDS", nil),

		// Playback
		CrowdSkipCooldown:    getEnvAsDuration("CROWD_SKIP_COOLDOWN", "5s"),
		DefaultLameThreshold: getEnvAsInt("DEFAULT_LAME_THRESHOLD", 50),

		// Caching and presence
		PresenceTTL:  getEnvAsDuration("PRESENCE_TTL", "45s"),
		RoomCacheTTL: getEnvAsDuration("ROOM_CACHE_TTL", "30s"),

		// Resolver
		ResolverTimeout:  getEnvAsDuration("RESOLVER_TIMEOUT", "10s"),
		ResolverCacheTTL: getEnvAsDuration("RESOLVER_CACHE_TTL", "1h"),

		// Security
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", "1m"),

		// CORS
		AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Hour
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
