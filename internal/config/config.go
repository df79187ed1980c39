package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/mortality-etl/internal/source"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Public dataset locations.
const (
	DefaultHistoricalURL  = "https://raw.githubusercontent.com/akarlinsky/world_mortality/main/world_mortality.csv"
	DefaultProvisionalURL = "https://data.cdc.gov/api/views/r8kw-7aab/rows.csv?accessType=DOWNLOAD"
	DefaultArchivedURL    = "https://archive.org/download/20250128-cdc-datasets/Deaths_from_Pneumonia_and_Influenza_P_I_and_all_deaths_by_state_and_region_National_Center_For_Health_Statistics_Mortality_Surveillance_System.csv"
	DefaultLocalFile      = "all_state_data_for_2019.csv"

	DefaultNationalOutput = "us_national_mortality_2015_present.csv"
	DefaultStateOutput    = "state_mortality_2015_present.csv"
)

// SourceConfig locates one source and bounds the years it contributes.
type SourceConfig struct {
	Location string        `yaml:"location"`
	Window   source.Window `yaml:"window"`
	Disabled bool          `yaml:"disabled"`
}

// ActiveLocation returns the location, or "" when the source is disabled.
func (sc SourceConfig) ActiveLocation() string {
	if sc.Disabled {
		return ""
	}
	return sc.Location
}

// Sources is the source catalog. It can be overridden by a YAML file.
type Sources struct {
	Historical    SourceConfig `yaml:"historical"`
	Provisional   SourceConfig `yaml:"provisional"`
	Archived      SourceConfig `yaml:"archived"`
	LocalFile     SourceConfig `yaml:"local_file"`
	LocalFileYear int          `yaml:"local_file_year"`
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Sources        Sources
	PopulationFile string

	OutputDir      string
	NationalOutput string
	StateOutput    string

	// Source retrieval.
	FetchMaxAttempts int
	FetchBackoff     time.Duration
	FetchTimeout     time.Duration
	FetchConcurrency int
	// FetchCacheTTL keeps fetched tables between runs of a long-lived
	// process. Zero disables the cache.
	FetchCacheTTL time.Duration

	ExpectedGrowthRate float64
	ValidateYear       int

	// Optional Kafka publishing of the compiled series.
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool
}

// NationalPath returns the national output file path.
func (c *Config) NationalPath() string { return filepath.Join(c.OutputDir, c.NationalOutput) }

// StatePath returns the state-level output file path.
func (c *Config) StatePath() string { return filepath.Join(c.OutputDir, c.StateOutput) }

// DefaultSources returns the built-in source catalog.
func DefaultSources() Sources {
	return Sources{
		Historical:    SourceConfig{Location: DefaultHistoricalURL, Window: source.DefaultHistoricalWindow},
		Provisional:   SourceConfig{Location: DefaultProvisionalURL, Window: source.DefaultProvisionalWindow},
		Archived:      SourceConfig{Location: DefaultArchivedURL, Window: source.DefaultArchivedWindow},
		LocalFile:     SourceConfig{Location: DefaultLocalFile},
		LocalFileYear: source.DefaultLocalFileYear,
	}
}

// Load reads configuration from a .env file if present and the environment,
// applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	sources, err := loadSources(os.Getenv("SOURCES_FILE"))
	if err != nil {
		return nil, err
	}
	overrideLocation(&sources.Historical, "HISTORICAL_URL")
	overrideLocation(&sources.Provisional, "PROVISIONAL_URL")
	overrideLocation(&sources.Archived, "ARCHIVED_URL")
	overrideLocation(&sources.LocalFile, "LOCAL_FILE")

	if sources.LocalFileYear, err = parseInt("LOCAL_FILE_YEAR", sources.LocalFileYear); err != nil {
		return nil, err
	}
	if sources.LocalFileYear < 1900 || sources.LocalFileYear > 2100 {
		return nil, errors.New("invalid LOCAL_FILE_YEAR: must be a four-digit year")
	}
	if err := sources.validate(); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		Sources:         sources,
		PopulationFile:  os.Getenv("POPULATION_FILE"),
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "."),
		NationalOutput:  sharedcfg.EnvOrDefault("NATIONAL_OUTPUT", DefaultNationalOutput),
		StateOutput:     sharedcfg.EnvOrDefault("STATE_OUTPUT", DefaultStateOutput),
		KafkaBrokers:    sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSinkTopic:  sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "mortality-series"),
	}

	if cfg.FetchMaxAttempts, err = parseInt("FETCH_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.FetchMaxAttempts < 1 {
		return nil, errors.New("invalid FETCH_MAX_ATTEMPTS: must be at least 1")
	}
	if cfg.FetchBackoff, err = parseDuration("FETCH_BACKOFF", time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = parseInt("FETCH_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency < 1 {
		return nil, errors.New("invalid FETCH_CONCURRENCY: must be at least 1")
	}

	if v := os.Getenv("FETCH_CACHE_TTL"); v != "" && v != "0" {
		if cfg.FetchCacheTTL, err = parseDuration("FETCH_CACHE_TTL", 0); err != nil {
			return nil, err
		}
	}

	if cfg.ExpectedGrowthRate, err = parseFloat("EXPECTED_GROWTH_RATE", 0.0131); err != nil {
		return nil, err
	}
	if cfg.ExpectedGrowthRate <= -1 || cfg.ExpectedGrowthRate >= 1 {
		return nil, errors.New("invalid EXPECTED_GROWTH_RATE: must be between -1 and 1")
	}
	if cfg.ValidateYear, err = parseInt("VALIDATE_YEAR", sources.LocalFileYear); err != nil {
		return nil, err
	}

	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.NationalOutput == cfg.StateOutput {
		return nil, errors.New("NATIONAL_OUTPUT and STATE_OUTPUT must differ")
	}

	return cfg, nil
}

func loadSources(path string) (Sources, error) {
	sources := DefaultSources()
	if path == "" {
		return sources, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Sources{}, fmt.Errorf("read SOURCES_FILE: %w", err)
	}
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return Sources{}, fmt.Errorf("parse SOURCES_FILE %s: %w", path, err)
	}
	return sources, nil
}

func (s Sources) validate() error {
	for name, sc := range map[string]SourceConfig{
		"historical":  s.Historical,
		"provisional": s.Provisional,
		"archived":    s.Archived,
	} {
		if sc.Window.To != 0 && sc.Window.To < sc.Window.From {
			return fmt.Errorf("source %s: window %s ends before it starts", name, sc.Window)
		}
		if !sc.Disabled && sc.Location == "" {
			return fmt.Errorf("source %s: location is required", name)
		}
	}
	if !s.LocalFile.Disabled && s.LocalFile.Location == "" {
		return errors.New("source local_file: location is required")
	}
	return nil
}

func overrideLocation(sc *SourceConfig, key string) {
	if v := os.Getenv(key); v != "" {
		sc.Location = v
	}
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
