// Package config loads server settings from defaults, an optional YAML file,
// the environment and command line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thereceipt/bill-printer/internal/printer"
	"github.com/thereceipt/bill-printer/internal/registry"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = "12212"
	DefaultMonitorInterval = 10 * time.Second
	DefaultMaxAttempts     = 1
	StoreFileName          = "bill_printer_store.json"
	appDirName             = "bill-printer"
)

// Environment variables read by Load
const (
	EnvPort    = "SERVER_PORT"
	EnvConfig  = "RECEIPT_CONFIG"
	EnvDataDir = "RECEIPT_DATA_DIR"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the server configuration
type Config struct {
	Port            string         `yaml:"port"`
	DataDir         string         `yaml:"data_dir"`
	Printer         printer.Config `yaml:"printer"`
	NetworkPrinters []string       `yaml:"network_printers"`
	ScanSubnet      bool           `yaml:"scan_subnet"`
	MonitorInterval time.Duration  `yaml:"monitor_interval"`
	MaxAttempts     int            `yaml:"max_attempts"`
	Headless        bool           `yaml:"headless"`
	LogLevel        string         `yaml:"log_level"`
	StoreName       string         `yaml:"store_name"`
	Footer          string         `yaml:"footer"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Port:            DefaultPort,
		Printer:         printer.DefaultConfig(),
		MonitorInterval: DefaultMonitorInterval,
		MaxAttempts:     DefaultMaxAttempts,
		LogLevel:        "info",
	}
}

// Load builds the configuration for the server from args (without the
// program name). A config file named by --config or RECEIPT_CONFIG must
// exist; otherwise config.yaml in the data directory is read if present.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("bill-printer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", os.Getenv(EnvConfig), "path to a YAML config file")
	port := fs.String("port", "", "API port")
	dataDir := fs.String("data-dir", "", "directory for the default printer store")
	headless := fs.Bool("headless", false, "run without the console UI")
	scan := fs.Bool("scan-subnet", false, "probe the local /24 for network printers")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	explicit := *configPath != ""
	path := *configPath
	if !explicit {
		path = filepath.Join(resolveDataDir(firstNonEmpty(*dataDir, os.Getenv(EnvDataDir))), "config.yaml")
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return cfg, err
	}

	if v := os.Getenv(EnvPort); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}

	if set["port"] {
		cfg.Port = *port
	}
	if set["data-dir"] {
		cfg.DataDir = *dataDir
	}
	if set["headless"] {
		cfg.Headless = *headless
	}
	if set["scan-subnet"] {
		cfg.ScanSubnet = *scan
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}

	cfg.DataDir = resolveDataDir(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// Validate checks the values that would otherwise fail late
func (c Config) Validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalidConfig, c.Port)
	}
	if c.Printer.Port <= 0 || c.Printer.Port > 65535 {
		return fmt.Errorf("%w: printer port %d", ErrInvalidConfig, c.Printer.Port)
	}
	if c.MonitorInterval < 0 {
		return fmt.Errorf("%w: negative monitor interval", ErrInvalidConfig)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidConfig)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if _, err := c.Devices(); err != nil {
		return err
	}
	return nil
}

// Devices returns the configured network printers. Entries are host or
// host:port; a bare host uses the printer port.
func (c Config) Devices() ([]registry.Device, error) {
	devices := make([]registry.Device, 0, len(c.NetworkPrinters))
	for _, entry := range c.NetworkPrinters {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		host, port := entry, c.Printer.Port
		if h, p, found := strings.Cut(entry, ":"); found {
			n, err := strconv.Atoi(p)
			if err != nil || n <= 0 || n > 65535 {
				return nil, fmt.Errorf("%w: network printer %q", ErrInvalidConfig, entry)
			}
			host, port = h, n
		}
		devices = append(devices, registry.Device{
			DeviceName: fmt.Sprintf("Network: %s:%d", host, port),
			IP:         host,
			Port:       port,
		})
	}
	return devices, nil
}

// Level returns the parsed log level
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// StorePath is the file holding the default printer
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, StoreFileName)
}

// Addr is the API listen address
func (c Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveDataDir returns dir if set. Otherwise it prefers the executable's
// directory when writable, then the working directory, then the per-user
// config directory.
func resolveDataDir(dir string) string {
	if dir != "" {
		return dir
	}

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		if writable(exeDir) {
			return exeDir
		}
	}

	if wd, err := os.Getwd(); err == nil && writable(wd) {
		return wd
	}

	var configDir string
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			configDir = filepath.Join(appData, appDirName)
		} else {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), appDirName)
		}
	} else if home := os.Getenv("HOME"); home != "" {
		configDir = filepath.Join(home, ".config", appDirName)
	}

	if configDir != "" {
		_ = os.MkdirAll(configDir, 0755)
		return configDir
	}
	return "."
}

func writable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.CreateTemp(dir, ".bill-printer-write-test-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
