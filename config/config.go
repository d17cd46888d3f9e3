package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coreybb/qcdash/models"
	"github.com/coreybb/qcdash/qcclient"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	QC     QCConfig     `yaml:"qc"`
	Poll   PollConfig   `yaml:"poll"`
	Site   SiteConfig   `yaml:"site"`
	Table  TableConfig  `yaml:"table"`
	Upload UploadConfig `yaml:"upload"`

	// ConfigPath is the path to the config file (not serialized)
	ConfigPath string `yaml:"-"`
}

// ServerConfig is the dashboard's own HTTP listener.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// QCConfig describes how to reach the QC server.
type QCConfig struct {
	ServerURL string        `yaml:"server_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PollConfig controls the job status reconciler.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// SiteConfig holds the installation-wide capability switches. Records that
// carry their own flags override these.
type SiteConfig struct {
	SubmissionEnabled bool `yaml:"submission_enabled"`
	EEAInstallation   bool `yaml:"eea_installation"`
}

// TableConfig is the initial query of the delivery table.
type TableConfig struct {
	PageSize int    `yaml:"page_size"`
	Sort     string `yaml:"sort"`
	Order    string `yaml:"order"`
}

type UploadConfig struct {
	ChunkSize int64 `yaml:"chunk_size"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 15 * time.Second,
		},
		QC: QCConfig{
			ServerURL: "http://localhost:8000",
			Timeout:   30 * time.Second,
		},
		Poll: PollConfig{
			Interval:    5 * time.Second,
			Concurrency: 4,
		},
		Site: SiteConfig{
			SubmissionEnabled: true,
			EEAInstallation:   true,
		},
		Table: TableConfig{
			PageSize: 20,
			Sort:     "id",
			Order:    "desc",
		},
		Upload: UploadConfig{
			ChunkSize: qcclient.DefaultChunkSize,
		},
	}
}

// searchPaths are tried in order when no explicit path is given.
var searchPaths = []string{
	"qcdash.yaml",
	"configs/qcdash.yaml",
	"/etc/qcdash/config.yaml",
}

// Load builds the configuration from defaults, then the YAML file, then
// environment variables (a .env file included), and validates the result.
// An explicit path must exist; without one the first file found in the
// search paths is used and running on defaults alone is allowed.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, loadedPath, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", loadedPath, err)
		}
		cfg.ConfigPath = loadedPath
		log.Printf("INFO (Config): Loaded configuration from %s", loadedPath)
	} else {
		log.Println("INFO (Config): No config file found, using defaults and environment")
	}

	if err := loadDotEnv(dotEnvPath); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read config file: %w", err)
		}
		return data, path, nil
	}
	for _, p := range searchPaths {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("failed to read config file %s: %w", p, err)
		}
	}
	return nil, "", nil
}

// dotEnvPath is read into the process environment before overrides are
// applied. Variables already set in the environment win.
var dotEnvPath = ".env"

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Printf("INFO (Config): Loaded environment from %s", path)
	return nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}

	str("PORT", &c.Server.Port)
	str("QC_SERVER_URL", &c.QC.ServerURL)
	str("QC_API_KEY", &c.QC.APIKey)
	duration("QC_TIMEOUT", &c.QC.Timeout)
	duration("QC_POLL_INTERVAL", &c.Poll.Interval)
	integer("QC_POLL_CONCURRENCY", &c.Poll.Concurrency)
	boolean("QC_SUBMISSION_ENABLED", &c.Site.SubmissionEnabled)
	boolean("QC_EEA_INSTALLATION", &c.Site.EEAInstallation)
	integer("QC_PAGE_SIZE", &c.Table.PageSize)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("5s") and bare seconds ("5").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// Validate checks that the configuration can run a dashboard.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	} else if n, err := strconv.Atoi(c.Server.Port); err != nil || n < 1 || n > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a valid port", c.Server.Port))
	}

	u, err := url.Parse(c.QC.ServerURL)
	if c.QC.ServerURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("qc.server_url %q must be an absolute http(s) URL", c.QC.ServerURL))
	}
	if c.QC.Timeout < 0 {
		errs = append(errs, errors.New("qc.timeout cannot be negative"))
	}
	if c.Poll.Interval < time.Second {
		errs = append(errs, fmt.Errorf("poll.interval %s is below the 1s minimum", c.Poll.Interval))
	}
	if c.Poll.Concurrency < 1 {
		errs = append(errs, errors.New("poll.concurrency must be at least 1"))
	}
	if c.Table.PageSize < 1 {
		errs = append(errs, errors.New("table.page_size must be at least 1"))
	}
	switch strings.ToLower(c.Table.Order) {
	case "", "asc", "desc":
	default:
		errs = append(errs, fmt.Errorf("table.order %q must be asc or desc", c.Table.Order))
	}
	if c.Upload.ChunkSize < 1 {
		errs = append(errs, errors.New("upload.chunk_size must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Capabilities are the site-level capability switches.
func (c *Config) Capabilities() models.Capabilities {
	return models.Capabilities{
		SubmissionEnabled: c.Site.SubmissionEnabled,
		EEAInstallation:   c.Site.EEAInstallation,
	}
}

// InitialQuery is the first page the delivery table shows.
func (c *Config) InitialQuery() qcclient.ListParams {
	return qcclient.ListParams{
		Limit: c.Table.PageSize,
		Sort:  c.Table.Sort,
		Order: strings.ToLower(c.Table.Order),
	}
}
