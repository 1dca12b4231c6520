package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. The types reflect how the values are used
// in the application: strings for identifiers and secrets, ints for
// durations and costs.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign session tokens
	TokenTTLDays int    // session token time-to-live in days
	BcryptCost   int    // bcrypt cost for password hashing
}

// Load reads configuration values from environment variables and
// returns a Config. Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
// Token lifetime and bcrypt cost fall back to the defaults the front
// end was built against (7 days, cost 12) when unset.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),    // environment (dev/test/prod)
		Port:         must("APP_PORT"),   // port to bind the HTTP server
		DBUser:       must("DB_USER"),    // database user
		DBPass:       os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:       must("DB_HOST"),    // database host
		DBPort:       must("DB_PORT"),    // database port
		DBName:       must("DB_NAME"),    // database name
		JWTSecret:    must("JWT_SECRET"), // secret used for signing session tokens
		TokenTTLDays: intDefault("TOKEN_TTL_DAYS", 7), // session lifetime in days
		BcryptCost:   intDefault("BCRYPT_COST", 12),   // bcrypt work factor
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// intDefault retrieves an optional integer environment variable,
// returning def when the variable is unset. A set-but-malformed value
// is a configuration mistake and exits with a fatal log message.
func intDefault(key string, def int) int {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
