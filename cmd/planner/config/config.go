// Package config provides configuration parsing and management for the planner.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. The Config struct contains all runtime
// configuration for the planner including:
//   - Site identification and the forecast source (SOURCE, SOURCE_* settings)
//   - Staffing parameters (AHT, interval length, service target, shrinkage)
//   - Solver limits (timeout, node budget, per-template instance cap)
//   - Timing (loop interval, planning horizon, timezone)
//   - Storage, logging and listen addresses
//
// The shift catalog is read from the YAML file named by SHIFTS_FILE (see
// LoadShifts).
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/HatiCode/shiftcast/pkg/staffing"
)

// Config holds all planner configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	MemoryTTL     time.Duration

	Site         string
	Source       string
	SourceConfig map[string]string
	ShiftsFile   string

	AHT             time.Duration
	IntervalLength  time.Duration
	ServiceTarget   string
	Shrinkage       float64
	MaxExtraServers int

	MaxInstances   int
	SolverTimeout  time.Duration
	SolverMaxNodes int

	Interval time.Duration
	Horizon  time.Duration
	Timezone string
}

// ParseFlags parses command-line flags and environment variables into a
// Config and exits the process when the result is invalid.
func ParseFlags() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse registers the planner flags on fs, parses args and validates the
// result.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8082"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50052"), "gRPC health listen address (empty to disable)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 24*time.Hour), "Redis snapshot TTL")
	fs.DurationVar(&cfg.MemoryTTL, "memory-ttl", getEnvDuration("MEMORY_TTL", 0), "In-memory snapshot TTL (0 = keep forever)")

	fs.StringVar(&cfg.Site, "site", getEnv("SITE", ""), "Site (contact centre) name")
	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", ""), "Forecast source: http, file, prometheus, or victoriametrics")
	fs.StringVar(&cfg.ShiftsFile, "shifts-file", getEnv("SHIFTS_FILE", "shifts.yaml"), "Shift catalog YAML file")

	fs.DurationVar(&cfg.AHT, "aht", getEnvDuration("AHT", 5*time.Minute), "Average handle time")
	fs.DurationVar(&cfg.IntervalLength, "interval-length", getEnvDuration("INTERVAL_LENGTH", 30*time.Minute), "Forecast interval length")
	fs.StringVar(&cfg.ServiceTarget, "service-target", getEnv("SERVICE_TARGET", "80/20"), "Service level target as level/seconds, e.g. 80/20")
	fs.Float64Var(&cfg.Shrinkage, "shrinkage", getEnvFloat("SHRINKAGE", 0), "Fraction of paid time unavailable for contacts, in [0,1)")
	fs.IntVar(&cfg.MaxExtraServers, "max-extra-servers", getEnvInt("MAX_EXTRA_SERVERS", staffing.DefaultMaxExtraServers), "Search bound above the offered load")

	fs.IntVar(&cfg.MaxInstances, "max-instances", getEnvInt("MAX_INSTANCES", 0), "Maximum instances per shift template (0 = unbounded)")
	fs.DurationVar(&cfg.SolverTimeout, "solver-timeout", getEnvDuration("SOLVER_TIMEOUT", 30*time.Second), "Coverage solver timeout per day")
	fs.IntVar(&cfg.SolverMaxNodes, "solver-max-nodes", getEnvInt("SOLVER_MAX_NODES", 0), "Coverage solver node budget (0 = default)")

	fs.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 15*time.Minute), "Planning loop interval")
	fs.DurationVar(&cfg.Horizon, "horizon", getEnvDuration("HORIZON", 24*time.Hour), "Planning horizon starting at today's midnight")
	fs.StringVar(&cfg.Timezone, "timezone", getEnv("TIMEZONE", "UTC"), "IANA timezone that defines calendar days")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.SourceConfig = parsePrefixedEnv("SOURCE_")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var siteNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Site == "" {
		return errors.New("--site is required")
	}
	if !siteNameRegex.MatchString(c.Site) {
		return fmt.Errorf("invalid site %q (must be alphanumeric with dash/underscore, 1-253 chars)", c.Site)
	}
	if c.Source == "" {
		return errors.New("--source is required")
	}
	if c.Storage != "memory" && c.Storage != "redis" {
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if c.MemoryTTL < 0 {
		return errors.New("memory-ttl cannot be negative")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	if c.Horizon < c.IntervalLength {
		return fmt.Errorf("horizon (%v) cannot be shorter than interval length (%v)", c.Horizon, c.IntervalLength)
	}
	if c.MaxInstances < 0 {
		return errors.New("max-instances cannot be negative")
	}
	if c.SolverTimeout <= 0 {
		return errors.New("solver-timeout must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	return nil
}

// Params returns the staffing parameters described by the configuration.
func (c *Config) Params() (staffing.Params, error) {
	level, wait, err := staffing.ParseServiceTarget(c.ServiceTarget)
	if err != nil {
		return staffing.Params{}, err
	}
	p := staffing.Params{
		AHT:             c.AHT,
		IntervalLength:  c.IntervalLength,
		TargetSL:        level,
		TargetWait:      wait,
		Shrinkage:       c.Shrinkage,
		MaxExtraServers: c.MaxExtraServers,
	}
	if err := p.Validate(); err != nil {
		return staffing.Params{}, err
	}
	return p, nil
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// parsePrefixedEnv collects PREFIX_* environment variables into a map keyed
// by the lowerCamelCase remainder (SOURCE_VOLUME_PATH → volumePath).
func parsePrefixedEnv(prefix string) map[string]string {
	config := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
			continue
		}
		config[toLowerCamelCase(key[len(prefix):])] = value
	}
	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			p = strings.ToUpper(p[:1]) + p[1:]
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
