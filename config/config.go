package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Key names the persisted record on disk.
const Key = "the_pulse_config_v1"

const (
	TransportGenAI     = "genai"
	TransportWebSocket = "websocket"
)

// Environment variables that override the stored API key, in priority order.
var credentialEnv = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

type Config struct {
	APIKey            string `yaml:"api_key,omitempty"`
	Model             string `yaml:"model,omitempty"`
	Voice             string `yaml:"voice,omitempty"`
	SystemInstruction string `yaml:"system_instruction,omitempty"`
	Transport         string `yaml:"transport,omitempty"`
	Endpoint          string `yaml:"endpoint,omitempty"`
	Device            string `yaml:"device,omitempty"`
	MetricsAddr       string `yaml:"metrics_addr,omitempty"`
}

func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pulse", Key+".yaml"), nil
}

// Load reads the record at path. A missing file yields an empty Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes the record with owner-only permissions. The file is replaced
// atomically so a crash never leaves a truncated key behind.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+Key+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *Config) Validate() error {
	switch c.Transport {
	case "", TransportGenAI, TransportWebSocket:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportGenAI, TransportWebSocket, c.Transport)
	}

	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint scheme must be ws, wss, http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("endpoint %q has no host", c.Endpoint)
		}
	}

	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
	}

	if strings.ContainsAny(c.APIKey, " \t\r\n") {
		return fmt.Errorf("api_key must not contain whitespace")
	}
	return nil
}

// Credential returns the API key to connect with: the environment wins
// over the stored record.
func (c *Config) Credential() string {
	for _, name := range credentialEnv {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return c.APIKey
}

// CredentialSource names where Credential came from, for diagnostics.
func (c *Config) CredentialSource() string {
	for _, name := range credentialEnv {
		if strings.TrimSpace(os.Getenv(name)) != "" {
			return name
		}
	}
	if c.APIKey != "" {
		return Key
	}
	return ""
}

// SetKey stores key in the record at path, keeping the other fields.
func SetKey(path, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	cfg.APIKey = key
	return cfg.Save(path)
}

// LoadEnv reads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Redacted returns key with all but the last four characters masked.
func Redacted(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
