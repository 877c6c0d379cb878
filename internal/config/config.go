package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete agent configuration. It is loaded once at startup
// and passed explicitly to every component; there is no ambient global.
type Config struct {
	Portal  PortalConfig  `yaml:"portal" envconfig:"PORTAL"`
	OCR     OCRConfig     `yaml:"ocr" envconfig:"OCR"`
	Agent   AgentConfig   `yaml:"agent" envconfig:"AGENT"`
	Browser BrowserConfig `yaml:"browser" envconfig:"BROWSER"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
}

// PortalConfig carries the portal entry point and operator credentials.
type PortalConfig struct {
	EntryURL string `yaml:"entry_url" envconfig:"ENTRY_URL"`
	UserID   string `yaml:"user_id" envconfig:"USER_ID"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
}

// OCRConfig configures the remote CAPTCHA OCR service.
type OCRConfig struct {
	Endpoint string        `yaml:"endpoint" envconfig:"ENDPOINT"`
	APIKey   string        `yaml:"api_key" envconfig:"API_KEY"`
	Language string        `yaml:"language" envconfig:"LANGUAGE"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// AgentConfig holds the agent identity fields used on declaration documents.
type AgentConfig struct {
	ID            string `yaml:"id" envconfig:"ID"`
	Name          string `yaml:"name" envconfig:"NAME"`
	Address       string `yaml:"address" envconfig:"ADDRESS"`
	HusbandName   string `yaml:"husband_name" envconfig:"HUSBAND_NAME"`
	LicenseExpiry string `yaml:"license_expiry" envconfig:"LICENSE_EXPIRY"`
}

// BrowserConfig tunes the browser session and the portal navigation waits.
// ReviewPause is the window the operator gets to fix a bad CAPTCHA guess
// before the login form submits.
type BrowserConfig struct {
	Headless         bool          `yaml:"headless" envconfig:"HEADLESS"`
	StepTimeout      time.Duration `yaml:"step_timeout" envconfig:"STEP_TIMEOUT"`
	OverlayTimeout   time.Duration `yaml:"overlay_timeout" envconfig:"OVERLAY_TIMEOUT"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	ReviewPause      time.Duration `yaml:"review_pause" envconfig:"REVIEW_PAUSE"`
	LandingWait      time.Duration `yaml:"landing_wait" envconfig:"LANDING_WAIT"`
	LoginMaxAttempts int           `yaml:"login_max_attempts" envconfig:"LOGIN_MAX_ATTEMPTS"`
	LoginBackoff     time.Duration `yaml:"login_backoff" envconfig:"LOGIN_BACKOFF"`
	PreviewRetries   int           `yaml:"preview_retries" envconfig:"PREVIEW_RETRIES"`
}

// PathsConfig contains the local directories the agent writes to.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	RecordsDir string `yaml:"records_dir" envconfig:"RECORDS_DIR"`
	TempDir    string `yaml:"temp_dir" envconfig:"TEMP_DIR"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
	LedgerFile string `yaml:"ledger_file" envconfig:"LEDGER_FILE"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// ServerConfig contains HTTP server configuration for the task API.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

const envPrefix = "DOP"

// Load builds the configuration in three layers: defaults, then the settings
// file, then environment variables. A missing settings file is not an error;
// defaults apply and the file is seeded on first Save.
func Load(path string) (*Config, error) {
	cfg := *Default()

	if path == "" {
		path = DefaultPath()
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Process only assigns fields whose DOP_* variable is actually set, so
	// running it against the merged config is a pure overlay.
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the settings file location used when none is given.
func DefaultPath() string {
	return "settings.yaml"
}

// Save rewrites the settings file. Called whenever the operator changes a
// setting so the next start sees it.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Browser.LoginMaxAttempts <= 0 {
		return fmt.Errorf("login max attempts must be positive")
	}
	if c.Browser.StepTimeout <= 0 {
		return fmt.Errorf("browser step timeout must be positive")
	}
	if c.Paths.LedgerFile == "" {
		return fmt.Errorf("ledger file path must be set")
	}
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "console" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/dopagent.log"
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Portal: PortalConfig{
			EntryURL: "https://dopagent.indiapost.gov.in",
		},
		OCR: OCRConfig{
			Endpoint: "https://api.ocr.space/parse/image",
			Language: "eng",
			Timeout:  30 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:         true,
			StepTimeout:      30 * time.Second,
			OverlayTimeout:   20 * time.Second,
			DownloadTimeout:  60 * time.Second,
			ReviewPause:      10 * time.Second,
			LandingWait:      15 * time.Second,
			LoginMaxAttempts: 8,
			LoginBackoff:     3 * time.Second,
			PreviewRetries:   30,
		},
		Paths: PathsConfig{
			DataDir:    "data",
			RecordsDir: "data/records",
			TempDir:    "data/temp",
			ReportsDir: "data/reports",
			LedgerFile: "data/ledger.csv",
			LogsDir:    "logs",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/dopagent.log",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}
