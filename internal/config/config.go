// Package config loads colorbot settings from defaults, a YAML file and
// COLORBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	IP   string `mapstructure:"ip" json:"ip"`
	Port int    `mapstructure:"port" json:"port"`
}

type ScreenConfig struct {
	Backend string `mapstructure:"backend" json:"backend"` // x11 | display | robotgo
	Display int    `mapstructure:"display" json:"display"`
}

type InputConfig struct {
	Backend  string `mapstructure:"backend" json:"backend"` // robotgo | arduino
	Smooth   bool   `mapstructure:"smooth" json:"smooth"`
	Port     string `mapstructure:"port" json:"port"`
	BaudRate int    `mapstructure:"baud_rate" json:"baudRate"`
}

type KeysConfig struct {
	Capture string `mapstructure:"capture" json:"capture"`
	Visible string `mapstructure:"visible" json:"visible"`
	Missing string `mapstructure:"missing" json:"missing"`
}

type MonitorConfig struct {
	FailSafe   bool `mapstructure:"fail_safe" json:"failSafe"`
	IntervalMs int  `mapstructure:"interval_ms" json:"intervalMs"`
}

type CooldownConfig struct {
	File string `mapstructure:"file" json:"file"`
}

type PickerConfig struct {
	Radius  int     `mapstructure:"radius" json:"radius"`
	Zoom    int     `mapstructure:"zoom" json:"zoom"`
	DPI     float64 `mapstructure:"dpi" json:"dpi"`
	Size    float64 `mapstructure:"size" json:"size"`
	Hinting string  `mapstructure:"hinting" json:"hinting"` // none | full
}

type Config struct {
	Server    ServerConfig   `mapstructure:"server" json:"server"`
	Screen    ScreenConfig   `mapstructure:"screen" json:"screen"`
	Input     InputConfig    `mapstructure:"input" json:"input"`
	Keys      KeysConfig     `mapstructure:"keys" json:"keys"`
	Monitor   MonitorConfig  `mapstructure:"monitor" json:"monitor"`
	Cooldowns CooldownConfig `mapstructure:"cooldowns" json:"cooldowns"`
	Picker    PickerConfig   `mapstructure:"picker" json:"picker"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.ip", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("screen.backend", "x11")
	v.SetDefault("screen.display", 0)
	v.SetDefault("input.backend", "robotgo")
	v.SetDefault("input.smooth", false)
	v.SetDefault("input.port", "/dev/ttyACM0")
	v.SetDefault("input.baud_rate", 9600)
	v.SetDefault("keys.capture", "F8")
	v.SetDefault("keys.visible", "F9")
	v.SetDefault("keys.missing", "F10")
	v.SetDefault("monitor.fail_safe", true)
	v.SetDefault("monitor.interval_ms", 100)
	v.SetDefault("cooldowns.file", filepath.Join("cooldowns", "cooldowns.toml"))
	v.SetDefault("picker.radius", 12)
	v.SetDefault("picker.zoom", 10)
	v.SetDefault("picker.dpi", 72)
	v.SetDefault("picker.size", 12)
	v.SetDefault("picker.hinting", "none")
}

// Load reads path, or colorbot.yaml from the working directory or
// $HOME/.colorbot when path is empty. A missing default file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("colorbot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".colorbot"))
		}
	}

	v.SetEnvPrefix("COLORBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.Screen.Backend {
	case "x11", "display", "robotgo":
	default:
		return fmt.Errorf("unknown screen backend %q", c.Screen.Backend)
	}
	switch c.Input.Backend {
	case "robotgo", "arduino":
	default:
		return fmt.Errorf("unknown input backend %q", c.Input.Backend)
	}
	if c.Monitor.IntervalMs <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %d", c.Monitor.IntervalMs)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.IP, strconv.Itoa(c.Server.Port))
}

func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMs) * time.Millisecond
}
