// Package config loads the stepformd configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tbxark/stepform/forms"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddr    = ":5808"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	Addr     string        `yaml:"addr"`
	LogMode  string        `yaml:"log_mode"`
	Language string        `yaml:"language"`
	Metrics  bool          `yaml:"metrics"`
	Backend  BackendConfig `yaml:"backend"`
	Forms    []FormConfig  `yaml:"forms"`
	LLM      *LLMConfig    `yaml:"llm,omitempty"`
}

// BackendConfig describes the operator panel API the forms talk to.
type BackendConfig struct {
	BaseURL      string            `yaml:"base_url"`
	Timeout      time.Duration     `yaml:"timeout"`
	FetchRetries int               `yaml:"fetch_retries"`
	RetryWaitMin time.Duration     `yaml:"retry_wait_min"`
	RetryWaitMax time.Duration     `yaml:"retry_wait_max"`
	Headers      map[string]string `yaml:"headers,omitempty"`
}

// FormConfig binds one registered form to its backend endpoints. Submit
// holds one path per submitting step.
type FormConfig struct {
	Name   string   `yaml:"name"`
	Fetch  string   `yaml:"fetch"`
	Method string   `yaml:"method"`
	Submit []string `yaml:"submit"`
	// MergePatch sends only the changed values as application/merge-patch+json.
	MergePatch bool `yaml:"merge_patch"`
}

type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Valid(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Valid fills defaults and rejects configurations the server cannot start
// with.
func (c *Config) Valid() error {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("language %q: %w", c.Language, err)
	}
	if c.Backend.BaseURL == "" && len(c.Forms) > 0 {
		return errors.New("backend.base_url is required when forms are configured")
	}
	if c.LLM != nil && c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = defaultTimeout
	}
	c.Backend.FetchRetries = min(max(0, c.Backend.FetchRetries), 10)
	if c.Backend.RetryWaitMin <= 0 {
		c.Backend.RetryWaitMin = 200 * time.Millisecond
	}
	c.Backend.RetryWaitMax = max(c.Backend.RetryWaitMax, c.Backend.RetryWaitMin)

	seen := map[string]bool{}
	for i := range c.Forms {
		f := &c.Forms[i]
		if !known(f.Name) {
			return fmt.Errorf("forms[%d]: unknown form %q", i, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("forms[%d]: duplicate form %q", i, f.Name)
		}
		seen[f.Name] = true
		if len(f.Submit) == 0 {
			return fmt.Errorf("forms[%d]: %s needs at least one submit path", i, f.Name)
		}
		f.Method = strings.ToUpper(f.Method)
		if f.Method == "" {
			f.Method = "POST"
		}
	}
	return nil
}

// Tag is the configured message language.
func (c *Config) Tag() language.Tag {
	return language.Make(c.Language)
}

// URL joins a configured path onto the backend base URL.
func (c *Config) URL(path string) string {
	if path == "" {
		return ""
	}
	return c.Backend.BaseURL + "/" + strings.TrimLeft(path, "/")
}

func known(name string) bool {
	for _, n := range forms.Registry {
		if n == name {
			return true
		}
	}
	return false
}
