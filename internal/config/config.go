package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const fileName = "config.yaml"

type Config struct {
	APIURL        string        `yaml:"api_url"`
	VerifyBaseURL string        `yaml:"verify_base_url,omitempty"`
	Profile       string        `yaml:"profile"`
	DBPath        string        `yaml:"db_path"`
	KeyPath       string        `yaml:"key_path"`
	Timeout       time.Duration `yaml:"timeout"`
	ShowProfanity bool          `yaml:"show_profanity"`
	MaxDepth      int           `yaml:"max_depth"`
	PageSize      int           `yaml:"page_size"`
}

// Dir is the per-user state directory.
func Dir() string {
	if v := os.Getenv("CALLIT_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".callit")
}

func Default(dir string) Config {
	return Config{
		APIURL:   "http://localhost:8000",
		Profile:  "default",
		DBPath:   filepath.Join(dir, "callit.db"),
		KeyPath:  filepath.Join(dir, "key"),
		Timeout:  30 * time.Second,
		MaxDepth: 5,
		PageSize: 20,
	}
}

// LoadEnvFile loads a .env file into the process environment. A missing file
// is not an error; variables already set are not overwritten.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load returns defaults, overlaid by <dir>/config.yaml, overlaid by the
// environment.
func Load(dir string) (Config, error) {
	cfg := Default(dir)

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", fileName, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}

	cfg.APIURL = strings.TrimSuffix(envString("CALLIT_API_URL", cfg.APIURL), "/")
	cfg.VerifyBaseURL = envString("CALLIT_VERIFY_BASE_URL", cfg.VerifyBaseURL)
	cfg.Profile = envString("CALLIT_PROFILE", cfg.Profile)
	cfg.DBPath = envString("CALLIT_DB", cfg.DBPath)
	cfg.KeyPath = envString("CALLIT_KEY", cfg.KeyPath)
	cfg.Timeout = envDuration("CALLIT_TIMEOUT", cfg.Timeout)
	cfg.ShowProfanity = envBool("CALLIT_SHOW_PROFANITY", cfg.ShowProfanity)
	cfg.MaxDepth = envInt("CALLIT_MAX_DEPTH", cfg.MaxDepth)
	cfg.PageSize = envInt("CALLIT_PAGE_SIZE", cfg.PageSize)

	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 5
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 20
	}
	return cfg, nil
}

func Write(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fileName), data, 0600)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
