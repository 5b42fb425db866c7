package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transports
const (
	TransportPoll = "poll"
	TransportPush = "push"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SCENESYNC_"

// Config: settings for one client session
type Config struct {
	ServerURL     string `yaml:"server_url" validate:"required,url"`
	Transport     string `yaml:"transport" validate:"oneof=poll push"`
	SceneID       string `yaml:"scene_id" validate:"omitempty,alphanum,max=64"`
	Authenticator string `yaml:"authenticator"`

	PollInterval time.Duration `yaml:"poll_interval" validate:"min=0"`
	PollTimeout  time.Duration `yaml:"poll_timeout" validate:"min=0"`
	PongWait     time.Duration `yaml:"pong_wait" validate:"min=0"`

	Width       int     `yaml:"width" validate:"min=1,max=16384"`
	Height      int     `yaml:"height" validate:"min=1,max=16384"`
	LineWidth   float64 `yaml:"line_width" validate:"gt=0,lte=1"`
	StrokeColor string  `yaml:"stroke_color" validate:"hexcolor"`
	Background  string  `yaml:"background" validate:"hexcolor"`
	Palette     string  `yaml:"palette" validate:"oneof=mono distinct"`
	FramePath   string  `yaml:"frame_path"`

	StorePath       string `yaml:"store_path"`
	StoreQuotaBytes int    `yaml:"store_quota_bytes" validate:"min=0"`

	MaxMessageSize int `yaml:"max_message_size" validate:"min=0"`
	MaxObjects     int `yaml:"max_objects" validate:"min=0"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ServerURL:       "http://localhost:8080",
		Transport:       TransportPush,
		PollInterval:    time.Second,
		PollTimeout:     5 * time.Second,
		PongWait:        60 * time.Second,
		Width:           800,
		Height:          800,
		LineWidth:       0.0025,
		StrokeColor:     "#000000",
		Background:      "#ffffff",
		Palette:         "mono",
		StoreQuotaBytes: 5 * 1024 * 1024,
		MaxMessageSize:  64 * 1024,
		MaxObjects:      100000,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then SCENESYNC_* variables. A .env file in the working
// directory is loaded into the environment first when present; it never
// overrides variables that are already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from SCENESYNC_<NAME> variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SERVER_URL":    &c.ServerURL,
		"TRANSPORT":     &c.Transport,
		"SCENE_ID":      &c.SceneID,
		"AUTHENTICATOR": &c.Authenticator,
		"STROKE_COLOR":  &c.StrokeColor,
		"BACKGROUND":    &c.Background,
		"PALETTE":       &c.Palette,
		"FRAME_PATH":    &c.FramePath,
		"STORE_PATH":    &c.StorePath,
		"LOG_LEVEL":     &c.LogLevel,
		"LOG_FORMAT":    &c.LogFormat,
	}
	for name, field := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*field = strings.TrimSpace(v)
		}
	}

	durations := map[string]*time.Duration{
		"POLL_INTERVAL": &c.PollInterval,
		"POLL_TIMEOUT":  &c.PollTimeout,
		"PONG_WAIT":     &c.PongWait,
	}
	for name, field := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*field = d
	}

	ints := map[string]*int{
		"WIDTH":             &c.Width,
		"HEIGHT":            &c.Height,
		"STORE_QUOTA_BYTES": &c.StoreQuotaBytes,
		"MAX_MESSAGE_SIZE":  &c.MaxMessageSize,
		"MAX_OBJECTS":       &c.MaxObjects,
	}
	for name, field := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*field = n
	}

	if v, ok := lookup(EnvPrefix + "LINE_WIDTH"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sLINE_WIDTH: %w", EnvPrefix, err)
		}
		c.LineWidth = f
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
