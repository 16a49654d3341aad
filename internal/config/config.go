package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the workspace.
const FileName = "syclops-ui.yml"

// Config models syclops-ui.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Pipeline struct {
		Executable    string   `yaml:"executable"`
		Args          []string `yaml:"args"`
		InstallFolder string   `yaml:"install_folder"`
		WorkDir       string   `yaml:"work_dir"`
	} `yaml:"pipeline"`
	AssetBrowser struct {
		Command []string `yaml:"command"`
		WorkDir string   `yaml:"work_dir"`
	} `yaml:"asset_browser"`
	Catalog struct {
		Path      string `yaml:"path"`
		CacheSize int    `yaml:"cache_size"`
	} `yaml:"catalog"`
	Jobs struct {
		TempDir string `yaml:"temp_dir"`
		DSN     string `yaml:"dsn"`
	} `yaml:"jobs"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if strings.TrimSpace(c.Pipeline.Executable) == "" {
		return fmt.Errorf("config.pipeline.executable is required")
	}
	if strings.TrimSpace(c.Pipeline.InstallFolder) == "" {
		return fmt.Errorf("config.pipeline.install_folder is required")
	}
	for i, arg := range c.Pipeline.Args {
		if arg == "" {
			return fmt.Errorf("config.pipeline.args[%d] is empty", i)
		}
	}
	if len(c.AssetBrowser.Command) > 0 && strings.TrimSpace(c.AssetBrowser.Command[0]) == "" {
		return fmt.Errorf("config.asset_browser.command must start with a program")
	}
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return fmt.Errorf("config.catalog.path is required")
	}
	if c.Catalog.CacheSize <= 0 {
		return fmt.Errorf("config.catalog.cache_size must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// Load reads and validates the workspace config.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	cfg, err := FromFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config %s not found; create one with syclops-ui config init", path)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadOptional returns Default() when the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: ""

pipeline:
  executable: syclops
  args: []
  install_folder: ./syclops_install
  work_dir: ""

asset_browser:
  command: [syclops, --asset-browser]
  work_dir: ""

catalog:
  path: ./asset_catalog.yaml
  cache_size: 16

jobs:
  temp_dir: ""
  dsn: ""

log:
  level: info
  format: text
`
