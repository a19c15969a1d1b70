package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/rjboer/gosoapy/internal/soapy"
)

// persistentConfig is the file soapyctl reads its defaults from, JSON or
// YAML depending on the extension. Flags and SOAPY_* environment variables
// override it per invocation.
type persistentConfig struct {
	Transport    string  `json:"transport" yaml:"transport"`
	WorkerPath   string  `json:"worker_path" yaml:"worker_path"`
	Driver       string  `json:"driver" yaml:"driver"`
	Identifier   string  `json:"identifier" yaml:"identifier"`
	Subdevice    string  `json:"subdevice" yaml:"subdevice"`
	AntennaIndex int     `json:"antenna_index" yaml:"antenna_index"`
	Frequency    float64 `json:"frequency" yaml:"frequency"`
	SampleRate   float64 `json:"sample_rate" yaml:"sample_rate"`
	Bandwidth    float64 `json:"bandwidth" yaml:"bandwidth"`
	Gain         float64 `json:"gain" yaml:"gain"`
	OpenRetries  int     `json:"open_retries" yaml:"open_retries"`
	SSHHost      string  `json:"ssh_host" yaml:"ssh_host"`
	SSHUser      string  `json:"ssh_user" yaml:"ssh_user"`
	SSHKeyPath   string  `json:"ssh_key_path" yaml:"ssh_key_path"`
	SSHPort      int     `json:"ssh_port" yaml:"ssh_port"`
	WebAddr      string  `json:"web_addr" yaml:"web_addr"`
	HistoryLimit int     `json:"history_limit" yaml:"history_limit"`
	LogLevel     string  `json:"log_level" yaml:"log_level"`
}

func defaultPersistentConfig() persistentConfig {
	return persistentConfig{
		Transport:    "inproc",
		Driver:       "sim",
		Frequency:    433.92e6,
		SampleRate:   2e6,
		Bandwidth:    2e6,
		Gain:         40,
		OpenRetries:  3,
		SSHUser:      "root",
		SSHPort:      22,
		HistoryLimit: 500,
		LogLevel:     "warn",
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "soapyctl.json"
	}
	return filepath.Join(dir, "soapyctl", "config.json")
}

func loadOrCreateConfig(path string) (persistentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultPersistentConfig()
			if saveErr := saveConfig(path, cfg); saveErr != nil {
				return persistentConfig{}, saveErr
			}
			return cfg, nil
		}
		return persistentConfig{}, err
	}

	cfg := defaultPersistentConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return persistentConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func saveConfig(path string, cfg persistentConfig) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// settings builds the orchestrator-side device view from the configuration.
func (c persistentConfig) settings() *soapy.Settings {
	return &soapy.Settings{
		Subdevice:    c.Subdevice,
		AntennaIndex: c.AntennaIndex,
		Frequency:    c.Frequency,
		SampleRate:   c.SampleRate,
		Bandwidth:    c.Bandwidth,
		Gain:         c.Gain,
		Serial:       c.Identifier,
	}
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
