// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Relational store holding the trial registry
	Database DatabaseConfig `yaml:"database"`

	// Indexing and retrieval sink
	LightRAG LightRAGConfig `yaml:"lightrag"`

	// Retrieval query defaults for evaluation
	Query QueryConfig `yaml:"query"`

	// Retrieval response cache
	Cache CacheConfig `yaml:"cache"`

	// Progress and report events
	Bus BusConfig `yaml:"bus"`

	// Input files
	Data DataConfig `yaml:"data"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Metrics export
	Metrics MetricsConfig `yaml:"metrics"`

	// HTTP surface of the serve command
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string  `envconfig:"TRIAL_HOST" yaml:"host"`
	Port      int     `envconfig:"TRIAL_PORT" yaml:"port"`
	RateLimit float64 `envconfig:"TRIAL_RATE_LIMIT" yaml:"rate_limit"` // requests/sec per client, 0 = off
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string        `envconfig:"SQL_HOST" yaml:"host"`
	Port           int           `envconfig:"SQL_PORT" yaml:"port"`
	Name           string        `envconfig:"SQL_DATABASE_AACT" yaml:"name"`
	User           string        `envconfig:"SQL_USERNAME" yaml:"user"`
	Password       string        `envconfig:"SQL_PASSWORD" yaml:"password"`
	SSLMode        string        `envconfig:"SQL_SSLMODE" yaml:"sslmode"`
	ConnectTimeout time.Duration `envconfig:"TRIAL_CONNECT_TIMEOUT" yaml:"connect_timeout"`
	Schema         string        `envconfig:"TRIAL_DB_SCHEMA" yaml:"schema"`
	StudiesTable   string        `envconfig:"TRIAL_STUDIES_TABLE" yaml:"studies_table"`
	CriteriaTable  string        `envconfig:"TRIAL_CRITERIA_TABLE" yaml:"criteria_table"`
}

// LightRAGConfig holds settings for the LightRAG server.
type LightRAGConfig struct {
	URL               string        `envconfig:"LIGHTRAG_URL" yaml:"url"`
	APIKey            string        `envconfig:"LIGHTRAG_API_KEY" yaml:"api_key"`
	Timeout           time.Duration `envconfig:"LIGHTRAG_TIMEOUT" yaml:"timeout"`
	RequestsPerSecond float64       `envconfig:"LIGHTRAG_RPS" yaml:"requests_per_second"` // 0 = unlimited
	FinalizePoll      time.Duration `envconfig:"LIGHTRAG_FINALIZE_POLL" yaml:"finalize_poll"`
	FinalizeTimeout   time.Duration `envconfig:"LIGHTRAG_FINALIZE_TIMEOUT" yaml:"finalize_timeout"`
}

// QueryConfig holds retrieval parameters used by evaluation runs.
type QueryConfig struct {
	Mode              string `envconfig:"TRIAL_QUERY_MODE" yaml:"mode"`
	TopK              int    `envconfig:"TRIAL_TOP_K" yaml:"top_k"`
	ChunkTopK         int    `envconfig:"TRIAL_CHUNK_TOP_K" yaml:"chunk_top_k"`
	MaxEntityTokens   int    `envconfig:"TRIAL_MAX_ENTITY_TOKENS" yaml:"max_entity_tokens"`
	MaxRelationTokens int    `envconfig:"TRIAL_MAX_RELATION_TOKENS" yaml:"max_relation_tokens"`
	EnableRerank      bool   `envconfig:"TRIAL_ENABLE_RERANK" yaml:"enable_rerank"`
	ResponseType      string `envconfig:"TRIAL_RESPONSE_TYPE" yaml:"response_type"`
	Concurrency       int    `envconfig:"TRIAL_EVAL_CONCURRENCY" yaml:"concurrency"`
	DisableCache      bool   `envconfig:"TRIAL_DISABLE_CACHE" yaml:"disable_cache"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type     string        `envconfig:"TRIAL_CACHE_TYPE" yaml:"type"`
	Size     int           `envconfig:"TRIAL_CACHE_SIZE" yaml:"size"`
	TTL      time.Duration `envconfig:"TRIAL_CACHE_TTL" yaml:"ttl"` // 0 = no expiry
	RedisURL string        `envconfig:"TRIAL_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"TRIAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"TRIAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"TRIAL_KAFKA_GROUP" yaml:"kafka_group"` // empty = publish only
	TopicPrefix  string `envconfig:"TRIAL_TOPIC_PREFIX" yaml:"topic_prefix"`
	EventLog     string `envconfig:"TRIAL_EVENT_LOG" yaml:"event_log"` // JSONL copy of every event
}

// DataConfig holds input file locations.
type DataConfig struct {
	TrialsCSV      string   `envconfig:"TRIAL_TRIALS_CSV" yaml:"trials_csv"`
	EligibilityCSV string   `envconfig:"TRIAL_ELIGIBILITY_CSV" yaml:"eligibility_csv"`
	GroundTruth    []string `envconfig:"TRIAL_GROUND_TRUTH" yaml:"ground_truth"`
	Topics         []string `envconfig:"TRIAL_TOPICS" yaml:"topics"`
	BatchSize      int      `envconfig:"TRIAL_BATCH_SIZE" yaml:"batch_size"` // 0 = single batch
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"TRIAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"TRIAL_LOG_FORMAT" yaml:"format"`
	File   string `envconfig:"TRIAL_LOG_FILE" yaml:"file"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// File receives the Prometheus text format on exit, for the node
	// exporter textfile collector. Empty disables export.
	File string `envconfig:"TRIAL_METRICS_FILE" yaml:"file"`
}

// Load loads configuration from a config file, a .env file and environment
// variables, in increasing order of priority.
func Load(configPath string) (*Config, error) {
	return LoadWithEnvFile(configPath, ".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. A missing dotenv
// file is not an error; an empty path skips dotenv loading.
func LoadWithEnvFile(configPath, envFile string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// godotenv.Load never overrides variables already set in the process
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return LoadWithEnvFile("", "")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Database = DatabaseConfig{
		Host:           "localhost",
		Port:           5432,
		Name:           "aact",
		SSLMode:        "disable",
		ConnectTimeout: 300 * time.Second,
		Schema:         "ctgov",
		StudiesTable:   "studies",
		CriteriaTable:  "eligibilities",
	}

	cfg.LightRAG = LightRAGConfig{
		URL:             "http://localhost:9621",
		Timeout:         5 * time.Minute,
		FinalizePoll:    2 * time.Second,
		FinalizeTimeout: 30 * time.Minute,
	}

	cfg.Query = QueryConfig{
		Mode:              "hybrid",
		TopK:              20,
		ChunkTopK:         20,
		MaxEntityTokens:   10000,
		MaxRelationTokens: 10000,
		EnableRerank:      false,
		ResponseType:      "Single Paragraph",
		Concurrency:       1,
		DisableCache:      true,
	}

	cfg.Cache = CacheConfig{
		Type:     "memory",
		Size:     1000,
		TTL:      0,
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:        "memory",
		TopicPrefix: "trialrag.",
	}

	cfg.Data = DataConfig{
		BatchSize: 0,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Server = ServerConfig{
		Host:      "0.0.0.0",
		Port:      8080,
		RateLimit: 10,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, "database port must be between 1 and 65535")
	}

	if c.Database.ConnectTimeout <= 0 {
		errs = append(errs, "connect_timeout must be positive")
	}

	if c.Database.StudiesTable == "" || c.Database.CriteriaTable == "" {
		errs = append(errs, "studies_table and criteria_table are required")
	}

	// LightRAG validation
	if c.LightRAG.URL == "" {
		errs = append(errs, "lightrag url is required")
	}

	if c.LightRAG.RequestsPerSecond < 0 {
		errs = append(errs, "requests_per_second must not be negative")
	}

	// Query validation
	validModes := map[string]bool{"local": true, "global": true, "hybrid": true, "naive": true, "mix": true, "bypass": true}
	if !validModes[c.Query.Mode] {
		errs = append(errs, fmt.Sprintf("invalid query mode: %s (must be local, global, hybrid, naive, mix, or bypass)", c.Query.Mode))
	}

	if c.Query.TopK < 1 {
		errs = append(errs, "top_k must be positive")
	}

	if c.Query.ChunkTopK < 1 {
		errs = append(errs, "chunk_top_k must be positive")
	}

	if c.Query.Concurrency < 1 {
		errs = append(errs, "concurrency must be at least 1")
	}

	// Cache validation
	validCacheTypes := map[string]bool{"memory": true, "redis": true, "none": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory, redis, or none)", c.Cache.Type))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true, "none": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory, kafka, or none)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required for kafka bus")
	}

	// Data validation
	if c.Data.BatchSize < 0 {
		errs = append(errs, "batch_size must not be negative")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	if c.Server.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// DSN returns a lib/pq key/value connection string.
func (d DatabaseConfig) DSN() string {
	parts := []string{
		"host=" + quoteDSN(d.Host),
		"port=" + strconv.Itoa(d.Port),
		"dbname=" + quoteDSN(d.Name),
		"sslmode=" + quoteDSN(d.SSLMode),
	}
	if d.User != "" {
		parts = append(parts, "user="+quoteDSN(d.User))
	}
	if d.Password != "" {
		parts = append(parts, "password="+quoteDSN(d.Password))
	}
	if secs := int(d.ConnectTimeout / time.Second); secs > 0 {
		parts = append(parts, "connect_timeout="+strconv.Itoa(secs))
	}
	return strings.Join(parts, " ")
}

// quoteDSN quotes a value for the key/value DSN syntax when needed.
func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// StudiesRelation returns the schema-qualified primary table.
func (d DatabaseConfig) StudiesRelation() string {
	return qualify(d.Schema, d.StudiesTable)
}

// CriteriaRelation returns the schema-qualified auxiliary table.
func (d DatabaseConfig) CriteriaRelation() string {
	return qualify(d.Schema, d.CriteriaTable)
}

func qualify(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
