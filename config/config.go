// Package config loads service settings from defaults, an optional TOML
// file, a .env file and BRK_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	defaultPort        = 3004
	defaultCoreDir     = "../BRK_CNC_CORE"
	setupConfigName    = "BRK_SETUP_WIZARD_CONFIG.json"
	companyConfigName  = "company-config.json"
	defaultServicesTTL = "3s"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Paths    PathsConfig    `toml:"paths"`
	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	NATS     NATSConfig     `toml:"nats"`
	Mirror   MirrorConfig   `toml:"mirror"`
	Services ServicesConfig `toml:"services"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// PathsConfig locates the two persisted documents and their snapshot
// directories. Empty fields are derived from CoreDir.
type PathsConfig struct {
	CoreDir       string `toml:"core_dir"`
	SetupConfig   string `toml:"setup_config"`
	CompanyConfig string `toml:"company_config"`
	ArchiveDir    string `toml:"archive_dir"`
	BackupsDir    string `toml:"backups_dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// DatabaseConfig enables the audit ledger when URL is set.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL string `toml:"url"`
}

// MirrorConfig enables off-site copies of backups when Bucket is set.
type MirrorConfig struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
	Prefix   string `toml:"prefix"`
}

type ServicesConfig struct {
	JSONScannerURL   string        `toml:"json_scanner_url"`
	ToolManagerURL   string        `toml:"tool_manager_url"`
	PlatesManagerURL string        `toml:"plates_manager_url"`
	TimeoutRaw       string        `toml:"timeout"`
	Timeout          time.Duration `toml:"-"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           defaultPort,
			AllowedOrigins: []string{"*"},
		},
		Paths: PathsConfig{
			CoreDir: defaultCoreDir,
		},
		Log: LogConfig{
			Level: "info",
		},
		Mirror: MirrorConfig{
			Region: "us-east-1",
			Prefix: "brk-dashboard/",
		},
		Services: ServicesConfig{
			JSONScannerURL:   "http://localhost:3005",
			ToolManagerURL:   "http://localhost:3002",
			PlatesManagerURL: "http://localhost:3003",
			TimeoutRaw:       defaultServicesTTL,
		},
	}
}

// Load builds the service configuration. path names an optional TOML file;
// when empty, BRK_CONFIG_FILE is consulted. A file named explicitly must
// exist.
func Load(path string) (*Config, error) {
	// .env is optional; variables already set in the process win.
	_ = godotenv.Load()

	cfg := defaults()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("BRK_CONFIG_FILE")
		explicit = path != ""
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) || explicit {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := firstEnv("BRK_PORT", "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BRK_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("BRK_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	setString(&cfg.Paths.CoreDir, "BRK_CORE_DIR")
	setString(&cfg.Paths.SetupConfig, "BRK_SETUP_CONFIG_PATH")
	setString(&cfg.Paths.CompanyConfig, "BRK_COMPANY_CONFIG_PATH")
	setString(&cfg.Paths.ArchiveDir, "BRK_ARCHIVE_DIR")
	setString(&cfg.Paths.BackupsDir, "BRK_BACKUPS_DIR")
	setString(&cfg.Log.Level, "BRK_LOG_LEVEL")
	setString(&cfg.Database.URL, "BRK_DATABASE_URL")
	setString(&cfg.NATS.URL, "BRK_NATS_URL")
	setString(&cfg.Mirror.Bucket, "BRK_MIRROR_S3_BUCKET")
	setString(&cfg.Mirror.Region, "BRK_MIRROR_S3_REGION")
	setString(&cfg.Mirror.Endpoint, "BRK_MIRROR_S3_ENDPOINT")
	setString(&cfg.Mirror.Prefix, "BRK_MIRROR_S3_PREFIX")
	setString(&cfg.Services.JSONScannerURL, "BRK_JSON_SCANNER_URL")
	setString(&cfg.Services.ToolManagerURL, "BRK_TOOL_MANAGER_URL")
	setString(&cfg.Services.PlatesManagerURL, "BRK_PLATES_MANAGER_URL")
	setString(&cfg.Services.TimeoutRaw, "BRK_SERVICES_TIMEOUT")
	return nil
}

// finalize derives unset paths, resolves them to absolute form and validates.
func (c *Config) finalize() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	p := &c.Paths
	if p.SetupConfig == "" {
		p.SetupConfig = filepath.Join(p.CoreDir, setupConfigName)
	}
	if p.CompanyConfig == "" {
		p.CompanyConfig = filepath.Join(p.CoreDir, "test-data", "source_data", companyConfigName)
	}
	if p.ArchiveDir == "" {
		p.ArchiveDir = filepath.Join(filepath.Dir(p.SetupConfig), "config_archive")
	}
	if p.BackupsDir == "" {
		p.BackupsDir = filepath.Join(filepath.Dir(p.CompanyConfig), "..", "backups")
	}
	for _, field := range []*string{&p.CoreDir, &p.SetupConfig, &p.CompanyConfig, &p.ArchiveDir, &p.BackupsDir} {
		abs, err := filepath.Abs(*field)
		if err != nil {
			return fmt.Errorf("resolving path %s: %w", *field, err)
		}
		*field = abs
	}

	d, err := time.ParseDuration(c.Services.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("services timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("services timeout must be positive, got %s", d)
	}
	c.Services.Timeout = d
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
