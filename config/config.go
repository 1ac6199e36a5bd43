package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"
)

const (
	envPort            = "PORT"
	envListenAddr      = "LISTEN_ADDR"
	envLogLevel        = "LOG_LEVEL"
	envLogFormat       = "LOG_FORMAT"
	envStaticDir       = "STATIC_DIR"
	envDefaultRoom     = "DEFAULT_ROOM"
	envAllowedOrigins  = "ALLOWED_ORIGINS"
	envMaxMessageBytes = "MAX_MESSAGE_BYTES"
	envSendQueueSize   = "SEND_QUEUE_SIZE"
	envPingInterval    = "PING_INTERVAL"
	envPongWait        = "PONG_WAIT"
	envShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

const (
	DefaultListenAddr      = ":3000"
	DefaultStaticDir       = "public"
	DefaultRoom            = "default"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = LogFormatText
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxMessageBytes = int64(64 * 1024)
	DefaultSendQueueSize   = 256
	DefaultPongWait        = 60 * time.Second
	DefaultPingInterval    = 54 * time.Second
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	StaticDir       string        `yaml:"static_dir"`
	DefaultRoom     string        `yaml:"default_room"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	SendQueueSize   int           `yaml:"send_queue_size"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait"`

	ICE ICEConfig `yaml:"ice"`

	// ICEServers is resolved from ICE and the ICE environment variables.
	ICEServers []webrtc.ICEServer `yaml:"-"`
}

func Default() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		StaticDir:       DefaultStaticDir,
		DefaultRoom:     DefaultRoom,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxMessageBytes: DefaultMaxMessageBytes,
		SendQueueSize:   DefaultSendQueueSize,
		PingInterval:    DefaultPingInterval,
		PongWait:        DefaultPongWait,
	}
}

// Load layers defaults, the optional YAML file at path and the process
// environment. Command-line flags are applied by the caller afterwards.
func Load(path string) (Config, error) {
	return load(os.LookupEnv, path)
}

func load(lookup func(string) (string, bool), path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.mergeEnv(lookup); err != nil {
		return Config{}, err
	}

	servers, err := cfg.ICE.resolve(lookup)
	if err != nil {
		return Config{}, fmt.Errorf("ice servers: %w", err)
	}
	cfg.ICEServers = servers

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	if port := envString(lookup, envPort); port != "" {
		c.ListenAddr = ":" + port
	}
	if addr := envString(lookup, envListenAddr); addr != "" {
		c.ListenAddr = addr
	}
	if v := envString(lookup, envLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := envString(lookup, envLogFormat); v != "" {
		c.LogFormat = v
	}
	if v, ok := lookup(envStaticDir); ok {
		c.StaticDir = strings.TrimSpace(v)
	}
	if v := envString(lookup, envDefaultRoom); v != "" {
		c.DefaultRoom = v
	}
	if v := envString(lookup, envAllowedOrigins); v != "" {
		c.AllowedOrigins = SplitCommaSeparated(v)
	}

	var err error
	if c.MaxMessageBytes, err = envInt64(lookup, envMaxMessageBytes, c.MaxMessageBytes); err != nil {
		return err
	}
	if c.SendQueueSize, err = envInt(lookup, envSendQueueSize, c.SendQueueSize); err != nil {
		return err
	}
	if c.PingInterval, err = envDuration(lookup, envPingInterval, c.PingInterval); err != nil {
		return err
	}
	if c.PongWait, err = envDuration(lookup, envPongWait, c.PongWait); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = envDuration(lookup, envShutdownTimeout, c.ShutdownTimeout); err != nil {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if strings.TrimSpace(c.DefaultRoom) == "" {
		errs = append(errs, errors.New("default room must not be empty"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes))
	}
	if c.SendQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("send queue size must be positive, got %d", c.SendQueueSize))
	}
	if c.PongWait <= 0 {
		errs = append(errs, fmt.Errorf("pong wait must be positive, got %s", c.PongWait))
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		errs = append(errs, fmt.Errorf("ping interval %s must be positive and shorter than pong wait %s", c.PingInterval, c.PongWait))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must not be negative, got %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

func envString(lookup func(string) (string, bool), key string) string {
	v, ok := lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func envInt(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw := envString(lookup, key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw := envString(lookup, key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDuration(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw := envString(lookup, key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func SplitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
