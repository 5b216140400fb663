package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For durations

	"tipytap/internal/domain" // Amount parsing

	"github.com/joho/godotenv" // For loading .env files
	"github.com/sirupsen/logrus"
)

// Ledger backends
const (
	BackendSQL = "sql"
	BackendKV  = "kv"
)

// Config holds the application configuration
type Config struct {
	AppPort    string        // Application port
	DBUser     string        // Database user
	DBPassword string        // Database password
	DBHost     string        // Database host
	DBPort     string        // Database port
	DBName     string        // Database name
	JWTSecret  string        // JWT secret key
	JWTTTL     time.Duration // Session token lifetime
	RedisAddr  string        // Redis server address
	RedisPass  string        // Redis password
	RedisDB    int           // Redis database number
	IsProd     bool          // Is production environment
	Ledger     Ledger        // Money movement rules
}

// Ledger holds the limits and settings of the wallet ledger
type Ledger struct {
	Backend          string        // "sql" or "kv"
	Currency         string        // ISO currency code for every wallet
	CurrencySymbol   string        // Display symbol used in messages
	QRCodePrefix     string        // Prefix of a guard QR payload
	MinTip           domain.Amount // Smallest tip
	MaxTip           domain.Amount // Largest tip
	MinWithdrawal    domain.Amount // Smallest withdrawal
	MaxWithdrawal    domain.Amount // Largest withdrawal
	MaxDeposit       domain.Amount // Largest deposit, zero means unbounded
	SimulatedLatency time.Duration // Artificial delay before each money movement
}

// DefaultLedger returns the limits the app ships with
func DefaultLedger() Ledger {
	return Ledger{
		Backend:        BackendSQL,
		Currency:       "ZAR",
		CurrencySymbol: "R",
		QRCodePrefix:   "CARGUARD_",
		MinTip:         domain.MustParseAmount("2"),
		MaxTip:         domain.MustParseAmount("500"),
		MinWithdrawal:  domain.MustParseAmount("50"),
		MaxWithdrawal:  domain.MustParseAmount("5000"),
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	ledger := DefaultLedger()
	ledger.Backend = getEnv("LEDGER_BACKEND", ledger.Backend)
	ledger.Currency = getEnv("CURRENCY", ledger.Currency)
	ledger.CurrencySymbol = getEnv("CURRENCY_SYMBOL", ledger.CurrencySymbol)
	ledger.QRCodePrefix = getEnv("QR_CODE_PREFIX", ledger.QRCodePrefix)
	ledger.MinTip = getAmountEnv("MIN_TIP_AMOUNT", ledger.MinTip)
	ledger.MaxTip = getAmountEnv("MAX_TIP_AMOUNT", ledger.MaxTip)
	ledger.MinWithdrawal = getAmountEnv("MIN_WITHDRAWAL", ledger.MinWithdrawal)
	ledger.MaxWithdrawal = getAmountEnv("MAX_WITHDRAWAL", ledger.MaxWithdrawal)
	ledger.MaxDeposit = getAmountEnv("MAX_DEPOSIT", ledger.MaxDeposit)
	ledger.SimulatedLatency = getDurationEnv("SIMULATED_LATENCY", 0)

	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),              // Application port
		DBUser:     os.Getenv("DB_USER"),                    // Database user
		DBPassword: os.Getenv("DB_PASSWORD"),                // Database password
		DBHost:     os.Getenv("DB_HOST"),                    // Database host
		DBPort:     os.Getenv("DB_PORT"),                    // Database port
		DBName:     os.Getenv("DB_NAME"),                    // Database name
		JWTSecret:  os.Getenv("JWT_SECRET"),                 // JWT secret key
		JWTTTL:     getDurationEnv("JWT_TTL", 24*time.Hour), // Session token lifetime
		RedisAddr:  os.Getenv("REDIS_ADDR"),                 // Redis server address
		RedisPass:  os.Getenv("REDIS_PASS"),                 // Redis password
		RedisDB:    redisDB,                                 // Redis database number
		IsProd:     os.Getenv("IS_PROD") == "true",          // Is production environment
		Ledger:     ledger,                                  // Ledger limits
	}
}

// DSN builds the MySQL data source name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getAmountEnv(key string, fallback domain.Amount) domain.Amount {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	a, err := domain.ParseAmount(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("invalid amount in environment, using default")
		return fallback
	}
	return a
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("invalid duration in environment, using default")
		return fallback
	}
	return d
}
