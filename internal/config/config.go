package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration from environment.
type Config struct {
	HTTPPort        string
	DatabaseURL     string
	DBPoolSize      int
	RedisURL        string
	RedisPoolSize   int
	CacheTTL        int // seconds
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaGroupID    string
	KafkaPartitions int
	WorkerPoolSize  int
	JWTSecret       string
	LogLevel        string

	// Client side.
	APIBaseURL    string
	APIToken      string
	Timezone      string
	DefaultSort   string
	UpcomingRange string
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// Get returns the application config (loads once from env).
func Get() *Config {
	cfgOnce.Do(func() {
		cfg = FromEnv()
	})
	return cfg
}

// FromEnv reads a fresh Config from the environment.
func FromEnv() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBPoolSize:      getIntEnv("DB_POOL_SIZE", 20),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPoolSize:   getIntEnv("REDIS_POOL_SIZE", 50),
		CacheTTL:        getIntEnv("CACHE_TTL_SEC", 300),
		KafkaBrokers:    getSliceEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:      getEnv("KAFKA_TASK_TOPIC", "task-events"),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "taskboard-cache-warmer"),
		KafkaPartitions: getIntEnv("KAFKA_PARTITIONS", 4),
		WorkerPoolSize:  getIntEnv("WORKER_POOL_SIZE", 4),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		APIBaseURL:      getEnv("TASKBOARD_API_URL", "http://localhost:8080"),
		APIToken:        os.Getenv("TASKBOARD_TOKEN"),
		Timezone:        os.Getenv("TASKBOARD_TZ"),
		DefaultSort:     os.Getenv("TASKBOARD_SORT"),
		UpcomingRange:   getEnv("TASKBOARD_RANGE", "week"),
	}
}

// GetJWTSecret returns JWT secret from config (for middleware that only has context).
func GetJWTSecret(ctx context.Context) string {
	return Get().JWTSecret
}

// CacheTTLDuration returns CacheTTL as a duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// FileConfig is the CLI's YAML file. ${VAR} references are expanded from the
// environment before parsing.
type FileConfig struct {
	APIURL   string `yaml:"api_url"`
	Token    string `yaml:"token"`
	Timezone string `yaml:"timezone"`
	Sort     string `yaml:"sort"`
	Range    string `yaml:"range"`
	LogLevel string `yaml:"log_level"`
}

// DefaultFilePath is $XDG_CONFIG_HOME/taskboard/config.yaml.
func DefaultFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "taskboard", "config.yaml")
}

// LoadFile parses the YAML config at path. A missing file yields a zero
// FileConfig and no error.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(expandPlaceholders(string(data))), &fc); err != nil {
		return fc, fmt.Errorf("error parsing config: %w", err)
	}
	return fc, nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandPlaceholders replaces ${VAR} with its environment value. Bare $ and
// unset variables are left as written.
func expandPlaceholders(content string) string {
	return placeholder.ReplaceAllStringFunc(content, func(m string) string {
		if v, ok := os.LookupEnv(m[2 : len(m)-1]); ok {
			return v
		}
		return m
	})
}

// Merge returns a copy of c with the file's non-empty values applied.
func (c Config) Merge(fc FileConfig) *Config {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.APIBaseURL, fc.APIURL)
	set(&c.APIToken, fc.Token)
	set(&c.Timezone, fc.Timezone)
	set(&c.DefaultSort, fc.Sort)
	set(&c.UpcomingRange, fc.Range)
	set(&c.LogLevel, fc.LogLevel)
	return &c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getSliceEnv(key, defaultVal string) []string {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{defaultVal}
}
