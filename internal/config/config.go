// Package config loads gyrodesk settings from defaults, a YAML file under the
// XDG config directory, GYRODESK_* environment variables and command-line
// flags, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gyrodesk/internal/motion"
	"gyrodesk/internal/protocol"
	"gyrodesk/internal/util"
)

const (
	appName    = "gyrodesk"
	envPrefix  = "GYRODESK"
	configName = "config"
	configType = "yaml"
)

// Config represents the application configuration
type Config struct {
	Control ControlConfig `mapstructure:"control"`
	Motion  MotionConfig  `mapstructure:"motion"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Status  StatusConfig  `mapstructure:"status"`
	Log     LogConfig     `mapstructure:"log"`
	Input   InputConfig   `mapstructure:"input"`
	Capture CaptureConfig `mapstructure:"capture"`
}

// ControlConfig configures the control listener
type ControlConfig struct {
	Port             int           `mapstructure:"port"`
	AcceptBackoff    time.Duration `mapstructure:"accept_backoff"`
	MaxAcceptBackoff time.Duration `mapstructure:"max_accept_backoff"`
	TakeoverTimeout  time.Duration `mapstructure:"takeover_timeout"`
}

// MotionConfig holds the pointer filter tunables
type MotionConfig struct {
	Sensitivity float64 `mapstructure:"sensitivity"`
	Smoothing   float64 `mapstructure:"smoothing"`
	DeadZone    float64 `mapstructure:"dead_zone"`
	CalibX      float64 `mapstructure:"calib_x"`
	CalibY      float64 `mapstructure:"calib_y"`
	InvertY     bool    `mapstructure:"invert_y"`
}

// StreamConfig holds streaming defaults and engine tunables
type StreamConfig struct {
	Port          int           `mapstructure:"port"`
	FPS           int           `mapstructure:"fps"`
	MaxWidth      int           `mapstructure:"max_width"`
	Quality       float64       `mapstructure:"quality"`
	FragmentSize  int           `mapstructure:"fragment_size"`
	CursorOverlay bool          `mapstructure:"cursor_overlay"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`
}

// StatusConfig configures the HTTP status server. An empty Addr disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// InputConfig selects the input actuation strategy
type InputConfig struct {
	Strategy string `mapstructure:"strategy"`
}

// CaptureConfig selects the screen capture source
type CaptureConfig struct {
	Source string `mapstructure:"source"`
}

// Filter validates the motion settings into a filter configuration
func (c *Config) Filter() (motion.Config, error) {
	m := c.Motion
	return motion.NewConfig(m.Sensitivity, m.Smoothing, m.DeadZone, m.CalibX, m.CalibY, m.InvertY)
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.Control.Port < 0 || c.Control.Port > 65535 {
		return errors.Errorf("control.port %d out of range", c.Control.Port)
	}
	if c.Stream.Port < 0 || c.Stream.Port > 65535 {
		return errors.Errorf("stream.port %d out of range", c.Stream.Port)
	}
	if c.Stream.FPS <= 0 {
		return errors.Errorf("stream.fps must be positive, got %d", c.Stream.FPS)
	}
	if c.Stream.Quality < 0 || c.Stream.Quality > 1 {
		return errors.Errorf("stream.quality must be within [0,1], got %g", c.Stream.Quality)
	}
	if _, err := c.Filter(); err != nil {
		return errors.Wrap(err, "motion")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("control.port", 5000)
	v.SetDefault("control.accept_backoff", 100*time.Millisecond)
	v.SetDefault("control.max_accept_backoff", 300*time.Millisecond)
	v.SetDefault("control.takeover_timeout", 2*time.Second)

	d := motion.DefaultConfig()
	v.SetDefault("motion.sensitivity", d.Sensitivity)
	v.SetDefault("motion.smoothing", d.Smoothing)
	v.SetDefault("motion.dead_zone", d.DeadZone)
	v.SetDefault("motion.calib_x", d.CalibX)
	v.SetDefault("motion.calib_y", d.CalibY)
	v.SetDefault("motion.invert_y", d.InvertY)

	v.SetDefault("stream.port", protocol.DefaultStreamPort)
	v.SetDefault("stream.fps", protocol.DefaultStreamFPS)
	v.SetDefault("stream.max_width", protocol.DefaultStreamMaxWidth)
	v.SetDefault("stream.quality", protocol.DefaultStreamQuality)
	v.SetDefault("stream.fragment_size", protocol.DefaultFragmentSize)
	v.SetDefault("stream.cursor_overlay", true)
	v.SetDefault("stream.stop_timeout", 500*time.Millisecond)

	v.SetDefault("status.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("input.strategy", "auto")
	v.SetDefault("capture.source", "auto")
}

// DefaultPath returns $XDG_CONFIG_HOME/gyrodesk/config.yaml
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, configName+"."+configType)
}

// Manager handles loading and saving configuration
type Manager struct {
	mu        sync.Mutex
	v         *viper.Viper
	path      string
	config    *Config
	onChanged func(*Config)
}

// NewManager creates a configuration manager. An empty path searches the
// XDG config directory and the working directory for config.yaml.
func NewManager(path string) *Manager {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
		v.AddConfigPath(".")
	}
	return &Manager{v: v, path: path}
}

// BindFlag lets a command-line flag override key
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.Errorf("no flag for %s", key)
	}
	return m.v.BindPFlag(key, flag)
}

// Load reads the config file, if any, and resolves the final configuration.
// A missing file is not an error.
func (m *Manager) Load() error {
	m.mu.Lock()

	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(errors.Cause(err)) {
			m.mu.Unlock()
			return errors.Wrap(err, "read config")
		}
	} else {
		util.GetLogger().Info("Loaded configuration", "component", "config", "file", m.v.ConfigFileUsed())
	}

	cfg, err := m.decode()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	cb := m.onChanged
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
	return nil
}

func (m *Manager) decode() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Stream.FragmentSize = protocol.NormalizeFragmentSize(cfg.Stream.FragmentSize)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// Save writes the current configuration to the file it was loaded from, or
// to DefaultPath.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.path
	if path == "" {
		path = m.v.ConfigFileUsed()
	}
	if path == "" {
		p, err := xdg.ConfigFile(filepath.Join(appName, configName+"."+configType))
		if err != nil {
			return errors.Wrap(err, "resolve config path")
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	util.GetLogger().Info("Saving configuration", "component", "config", "file", path)
	return errors.Wrap(m.v.WriteConfigAs(path), "write config")
}

// Get returns a copy of the current configuration. Before Load it returns
// the defaults.
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		cfg, err := m.decode()
		if err != nil {
			return nil
		}
		m.config = cfg
	}
	c := *m.config
	return &c
}

// Set validates and applies cfg, then notifies the change callback
func (m *Manager) Set(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	apply(m.v, cfg)
	c := *cfg
	m.config = &c
	cb := m.onChanged
	m.mu.Unlock()

	if cb != nil {
		cb(&c)
	}
	return nil
}

func apply(v *viper.Viper, c *Config) {
	v.Set("control.port", c.Control.Port)
	v.Set("control.accept_backoff", c.Control.AcceptBackoff)
	v.Set("control.max_accept_backoff", c.Control.MaxAcceptBackoff)
	v.Set("control.takeover_timeout", c.Control.TakeoverTimeout)
	v.Set("motion.sensitivity", c.Motion.Sensitivity)
	v.Set("motion.smoothing", c.Motion.Smoothing)
	v.Set("motion.dead_zone", c.Motion.DeadZone)
	v.Set("motion.calib_x", c.Motion.CalibX)
	v.Set("motion.calib_y", c.Motion.CalibY)
	v.Set("motion.invert_y", c.Motion.InvertY)
	v.Set("stream.port", c.Stream.Port)
	v.Set("stream.fps", c.Stream.FPS)
	v.Set("stream.max_width", c.Stream.MaxWidth)
	v.Set("stream.quality", c.Stream.Quality)
	v.Set("stream.fragment_size", c.Stream.FragmentSize)
	v.Set("stream.cursor_overlay", c.Stream.CursorOverlay)
	v.Set("stream.stop_timeout", c.Stream.StopTimeout)
	v.Set("status.addr", c.Status.Addr)
	v.Set("log.level", c.Log.Level)
	v.Set("input.strategy", c.Input.Strategy)
	v.Set("capture.source", c.Capture.Source)
}

// RegisterChangeCallback registers a function called after Load, Set or a
// watched file change.
func (m *Manager) RegisterChangeCallback(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// Watch reloads the configuration when the file changes. Invalid edits are
// logged and the previous configuration stays in effect.
func (m *Manager) Watch() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		logger := util.GetLogger().With("component", "config")
		m.mu.Lock()
		cfg, err := m.decode()
		if err != nil {
			m.mu.Unlock()
			logger.Warn("Ignoring invalid configuration change", "file", e.Name, "error", err)
			return
		}
		m.config = cfg
		cb := m.onChanged
		m.mu.Unlock()

		logger.Info("Configuration reloaded", "file", e.Name)
		if cb != nil {
			cb(cfg)
		}
	})
	m.v.WatchConfig()
}
