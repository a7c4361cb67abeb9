package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"photo-library-finder/internal/calendar"
	"photo-library-finder/internal/phash"

	"gopkg.in/yaml.v3"
)

const settingsFile = "photo-library-finder-settings.json"

type AppConfig struct {
	Directory          string                `json:"directory" yaml:"directory"`
	Recursive          bool                  `json:"recursive" yaml:"recursive"`
	IncludeArchives    bool                  `json:"include_archives" yaml:"include_archives"`
	Threshold          float64               `json:"threshold" yaml:"threshold"`
	BatchSize          int                   `json:"batch_size" yaml:"batch_size"`
	HashType           string                `json:"hash_type" yaml:"hash_type"`
	ItemTimeoutSeconds int                   `json:"item_timeout_seconds" yaml:"item_timeout_seconds"`
	CachePath          string                `json:"cache_path" yaml:"cache_path"`
	LRUSize            int                   `json:"lru_size" yaml:"lru_size"`
	Port               int                   `json:"port" yaml:"port"`
	Layout             calendar.LayoutConfig `json:"layout" yaml:"layout"`
	Debug              bool                  `json:"debug" yaml:"debug"`
}

// Default returns the configuration used when no settings file exists.
func Default() *AppConfig {
	return &AppConfig{
		Recursive:          true,
		Threshold:          90,
		BatchSize:          50,
		HashType:           string(phash.PHash),
		ItemTimeoutSeconds: 30,
		LRUSize:            4096,
		Port:               8080,
		Layout:             calendar.DefaultLayoutConfig(),
	}
}

// GetConfigPath returns $PLF_CONFIG, or the settings file next to the executable.
func GetConfigPath() string {
	if p := os.Getenv("PLF_CONFIG"); p != "" {
		return p
	}
	exePath, err := os.Executable()
	if err != nil {
		return settingsFile
	}
	return filepath.Join(filepath.Dir(exePath), settingsFile)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func LoadConfig() (*AppConfig, error) {
	return LoadConfigFrom(GetConfigPath())
}

// LoadConfigFrom reads JSON, or YAML when the path ends in .yaml/.yml. On a
// read error the defaults are returned together with the error.
func LoadConfigFrom(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		applyEnvOverrides(cfg)
		return cfg, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg, nil
}

func setDefaults(cfg *AppConfig) {
	d := Default()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.HashType == "" {
		cfg.HashType = d.HashType
	}
	if cfg.ItemTimeoutSeconds <= 0 {
		cfg.ItemTimeoutSeconds = d.ItemTimeoutSeconds
	}
	if cfg.LRUSize <= 0 {
		cfg.LRUSize = d.LRUSize
	}
	if cfg.Port == 0 {
		cfg.Port = d.Port
	}
	if cfg.Layout.ThumbnailSize <= 0 {
		cfg.Layout = d.Layout
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("PLF_DIRECTORY"); v != "" {
		cfg.Directory = v
	}
	if v := os.Getenv("PLF_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("PLF_HASH_TYPE"); v != "" {
		cfg.HashType = v
	}
	if v := os.Getenv("PLF_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("PLF_THRESHOLD"); v != "" {
		if th, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Threshold = th
		}
	}
	if v := os.Getenv("PLF_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("PLF_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

// Validate checks ranges that would otherwise fail deep inside an analysis.
func (c *AppConfig) Validate() error {
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("threshold %.2f outside 0-100", c.Threshold)
	}
	if _, err := phash.ParseHashType(c.HashType); err != nil {
		return err
	}
	return c.Layout.Validate()
}

// ItemTimeout is the per-file hashing deadline.
func (c *AppConfig) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSeconds) * time.Second
}

func SaveConfig(cfg *AppConfig) error {
	return SaveConfigTo(cfg, GetConfigPath())
}

func SaveConfigTo(cfg *AppConfig, path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
