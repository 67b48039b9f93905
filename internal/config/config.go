package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	Name    string = "format-ls"
	Version string = "0.1.0"

	ConfigFileName     string = ".format-ls.json"
	ConfigFileNameYaml string = ".format-ls.yaml"
	ConfigFileNameYml  string = ".format-ls.yml"

	ConfigItemFormatters string = "formatters"

	InputText string = "text"
	InputFile string = "file"

	DefaultTimeoutSeconds int = 30
)

// ConfigFileNames lists the accepted config files in lookup order.
var ConfigFileNames = []string{ConfigFileName, ConfigFileNameYaml, ConfigFileNameYml}

var ErrConfigNotFound = errors.New("config file not found")

type Config struct {
	RawData     json.RawMessage
	Path        string
	Formatters  map[string]Formatter
	initialized bool
}

type Formatter struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Sources        []string `json:"sources" yaml:"sources"`
	Priority       int      `json:"priority" yaml:"priority"`
	Container      string   `json:"container" yaml:"container"`
	Path           string   `json:"path" yaml:"path"`
	Args           []string `json:"args" yaml:"args"`
	ConfigFile     string   `json:"configFile" yaml:"configFile"`
	Input          string   `json:"input" yaml:"input"`
	FormatOnSave   bool     `json:"formatOnSave" yaml:"formatOnSave"`
	TimeoutSeconds int      `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

// Timeout returns the configured timeout, falling back to DefaultTimeoutSeconds.
func (f Formatter) Timeout() time.Duration {
	if f.TimeoutSeconds <= 0 {
		return time.Duration(DefaultTimeoutSeconds) * time.Second
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// InputMode returns the configured input mode, "text" when unset.
func (f Formatter) InputMode() string {
	if f.Input == "" {
		return InputText
	}
	return f.Input
}

func (f Formatter) validate(name string) error {
	if f.Path == "" {
		return fmt.Errorf("formatter %s: missing path", name)
	}
	if len(f.Sources) == 0 {
		return fmt.Errorf("formatter %s: no sources configured", name)
	}
	switch f.InputMode() {
	case InputText, InputFile:
	default:
		return fmt.Errorf("formatter %s: unknown input %q (want %q or %q)", name, f.Input, InputText, InputFile)
	}
	if f.TimeoutSeconds < 0 {
		return fmt.Errorf("formatter %s: negative timeoutSeconds", name)
	}
	return nil
}

func (config *Config) IsInitialized() bool {
	return config.initialized
}

// FindConfigFile returns the first config file present in projectRoot.
func FindConfigFile(projectRoot string) (string, error) {
	for _, name := range ConfigFileNames {
		configPath := filepath.Join(projectRoot, name)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrConfigNotFound, projectRoot)
}

// IsConfigFile reports whether path names one of the accepted config files.
func IsConfigFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range ConfigFileNames {
		if base == name {
			return true
		}
	}
	return false
}

func (config *Config) LoadConfig(projectRoot string) (*Config, error) {
	configPath, err := FindConfigFile(projectRoot)
	if err != nil {
		return config, err
	}

	return config.LoadConfigFile(configPath)
}

func (config *Config) LoadConfigFile(configPath string) (*Config, error) {
	rawData, err := os.ReadFile(configPath)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	// YAML files are normalised to JSON so RawData has one shape for showConfig.
	if filepath.Ext(configPath) != ".json" {
		rawData, err = yamlToJSON(rawData)
		if err != nil {
			return config, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	rawMap := make(map[string]json.RawMessage)
	if err := json.Unmarshal(rawData, &rawMap); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	formattersData := make(map[string]Formatter)
	if rawFormatters, exists := rawMap[ConfigItemFormatters]; exists {
		if err := json.Unmarshal(rawFormatters, &formattersData); err != nil {
			return config, fmt.Errorf("failed to parse formatters: %w", err)
		}
	} else {
		return config, fmt.Errorf("no formatters configured (missing key %s)", ConfigItemFormatters)
	}

	// disabled entries may be left half written
	for name, formatter := range formattersData {
		if !formatter.Enabled {
			continue
		}
		if err := formatter.validate(name); err != nil {
			return config, err
		}
	}

	config.RawData = rawData
	config.Path = configPath
	config.Formatters = formattersData
	config.initialized = true

	return config, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc struct {
		Formatters map[string]Formatter `yaml:"formatters"`
		Extra      map[string]any       `yaml:",inline"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(doc.Extra)+1)
	for k, v := range doc.Extra {
		out[k] = v
	}
	if doc.Formatters != nil {
		out[ConfigItemFormatters] = doc.Formatters
	}

	return json.Marshal(out)
}
