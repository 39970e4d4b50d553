package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	defaultDisplayWidth    = 144
	defaultDisplayHeight   = 24
	defaultDelayMs         = 5000
	defaultFrameIntervalMs = 100
	defaultRetirementAgeS  = 60
	defaultBroker          = "tcp://localhost:1883"
	defaultKeepAliveS      = 60
	defaultStatusAddr      = ":8089"

	// RotateByProgram plays each program through before moving to the next one
	RotateByProgram = "program"
	// RotateByFrame takes one frame from each program in turn
	RotateByFrame = "frame"
)

// DisplayConfig describes the pixel matrix
type DisplayConfig struct {
	Width          int `toml:"width"`
	Height         int `toml:"height"`
	Size           int `toml:"size"`
	DefaultDelayMs int `toml:"default_delay_ms"`
}

// SchedulerConfig controls rotation and pacing
type SchedulerConfig struct {
	FrameIntervalMs int    `toml:"frame_interval_ms"`
	RetirementAgeS  int    `toml:"retirement_age_s"`
	Rotation        string `toml:"rotation"`
	AnimateStills   bool   `toml:"animate_stills"`
	// HoldFrames keeps a frame on the display for its own duration
	// instead of replacing it on every tick
	HoldFrames bool `toml:"hold_frames"`
}

// MQTTConfig holds broker connection settings
type MQTTConfig struct {
	Broker     string `toml:"broker"`
	ClientID   string `toml:"client_id"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	QoS        byte   `toml:"qos"`
	KeepAliveS int    `toml:"keepalive_s"`
}

// TopicsConfig names the topics the scheduler uses
type TopicsConfig struct {
	// Programs is a prefix; the trailing segment is the program identifier
	Programs  string `toml:"programs"`
	Sequences string `toml:"sequences"`
	Alerts    string `toml:"alerts"`
	Frames    string `toml:"frames"`
	Stats     string `toml:"stats"`
}

// StatusConfig configures the HTTP status endpoint
type StatusConfig struct {
	Addr string `toml:"addr"`
}

// AppConfig holds application configuration
type AppConfig struct {
	Display   DisplayConfig   `toml:"display"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	Topics    TopicsConfig    `toml:"topics"`
	Status    StatusConfig    `toml:"status"`
}

// Default returns the built-in configuration
func Default() *AppConfig {
	return &AppConfig{
		Display: DisplayConfig{
			Width:          defaultDisplayWidth,
			Height:         defaultDisplayHeight,
			Size:           defaultDisplayWidth * defaultDisplayHeight,
			DefaultDelayMs: defaultDelayMs,
		},
		Scheduler: SchedulerConfig{
			FrameIntervalMs: defaultFrameIntervalMs,
			RetirementAgeS:  defaultRetirementAgeS,
			Rotation:        RotateByProgram,
			HoldFrames:      true,
		},
		MQTT: MQTTConfig{
			Broker:     defaultBroker,
			KeepAliveS: defaultKeepAliveS,
		},
		Topics: TopicsConfig{
			Programs:  "ledslie/sequences/1/",
			Sequences: "ledslie/sequences/1",
			Alerts:    "ledslie/alerts/1",
			Frames:    "ledslie/frames/1",
			Stats:     "ledslie/stats/",
		},
		Status: StatusConfig{Addr: defaultStatusAddr},
	}
}

// NewAppConfig creates a new application configuration instance.
// Defaults are overlaid by the TOML file named in LEDMATRIX_CONFIG,
// then by LEDMATRIX_* environment variables.
func NewAppConfig(logger *zap.Logger) (*AppConfig, error) {
	cfg := Default()
	// Size follows the final geometry unless a layer sets it explicitly
	cfg.Display.Size = 0

	if path := os.Getenv("LEDMATRIX_CONFIG"); path != "" {
		if err := cfg.loadFile(expandPath(path)); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Display.Size == 0 {
		cfg.Display.Size = cfg.Display.Width * cfg.Display.Height
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("Configuration loaded",
		zap.Int("displayWidth", cfg.Display.Width),
		zap.Int("displayHeight", cfg.Display.Height),
		zap.Int("displaySize", cfg.Display.Size),
		zap.Duration("retirementAge", cfg.RetirementAge()),
		zap.Duration("frameInterval", cfg.FrameInterval()),
		zap.String("rotation", cfg.Scheduler.Rotation),
		zap.String("broker", cfg.MQTT.Broker))

	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"LEDMATRIX_DISPLAY_WIDTH", &c.Display.Width},
		{"LEDMATRIX_DISPLAY_HEIGHT", &c.Display.Height},
		{"LEDMATRIX_DISPLAY_SIZE", &c.Display.Size},
		{"LEDMATRIX_DEFAULT_DELAY_MS", &c.Display.DefaultDelayMs},
		{"LEDMATRIX_FRAME_INTERVAL_MS", &c.Scheduler.FrameIntervalMs},
		{"LEDMATRIX_RETIREMENT_AGE_S", &c.Scheduler.RetirementAgeS},
		{"LEDMATRIX_MQTT_KEEPALIVE_S", &c.MQTT.KeepAliveS},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"LEDMATRIX_ANIMATE_STILLS", &c.Scheduler.AnimateStills},
		{"LEDMATRIX_HOLD_FRAMES", &c.Scheduler.HoldFrames},
	}
	for _, e := range bools {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = b
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"LEDMATRIX_ROTATION", &c.Scheduler.Rotation},
		{"LEDMATRIX_MQTT_BROKER", &c.MQTT.Broker},
		{"LEDMATRIX_MQTT_CLIENT_ID", &c.MQTT.ClientID},
		{"LEDMATRIX_MQTT_USERNAME", &c.MQTT.Username},
		{"LEDMATRIX_MQTT_PASSWORD", &c.MQTT.Password},
		{"LEDMATRIX_STATUS_ADDR", &c.Status.Addr},
	}
	for _, e := range strs {
		if v := os.Getenv(e.name); v != "" {
			*e.dst = v
		}
	}

	if v := os.Getenv("LEDMATRIX_MQTT_QOS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("LEDMATRIX_MQTT_QOS: %w", err)
		}
		c.MQTT.QoS = byte(n)
	}
	return nil
}

// Validate checks the configuration for values the scheduler cannot work with
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		errs = append(errs, fmt.Errorf("display geometry must be positive, got %dx%d", c.Display.Width, c.Display.Height))
	}
	if c.Display.Size != c.Display.Width*c.Display.Height {
		errs = append(errs, fmt.Errorf("display size %d does not match %dx%d", c.Display.Size, c.Display.Width, c.Display.Height))
	}
	if c.Display.DefaultDelayMs <= 0 {
		errs = append(errs, errors.New("default delay must be positive"))
	}
	if c.Scheduler.FrameIntervalMs <= 0 {
		errs = append(errs, errors.New("frame interval must be positive"))
	}
	if c.Scheduler.RetirementAgeS <= 0 {
		errs = append(errs, errors.New("retirement age must be positive"))
	}
	if c.Scheduler.Rotation != RotateByProgram && c.Scheduler.Rotation != RotateByFrame {
		errs = append(errs, fmt.Errorf("unknown rotation %q", c.Scheduler.Rotation))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt qos %d out of range", c.MQTT.QoS))
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt broker is required"))
	}
	if !strings.HasSuffix(c.Topics.Programs, "/") {
		errs = append(errs, fmt.Errorf("programs topic %q must end with /", c.Topics.Programs))
	}
	if c.Topics.Sequences == "" || c.Topics.Alerts == "" || c.Topics.Frames == "" {
		errs = append(errs, errors.New("sequences, alerts and frames topics are required"))
	}
	return errors.Join(errs...)
}

// DefaultDelay is the duration used for frames that carry none
func (c *AppConfig) DefaultDelay() time.Duration {
	return time.Duration(c.Display.DefaultDelayMs) * time.Millisecond
}

// FrameInterval is the scheduler tick period
func (c *AppConfig) FrameInterval() time.Duration {
	return time.Duration(c.Scheduler.FrameIntervalMs) * time.Millisecond
}

// RetirementAge is how long a program may go without a refresh
func (c *AppConfig) RetirementAge() time.Duration {
	return time.Duration(c.Scheduler.RetirementAgeS) * time.Second
}

// ProgramsFilter is the MQTT subscription filter for the program family
func (c *AppConfig) ProgramsFilter() string {
	return c.Topics.Programs + "+"
}

// expandPath expands environment variables and a leading ~
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}
