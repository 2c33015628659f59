// ABOUTME: Receiver application configuration loaded through viper
// ABOUTME: Defaults, optional micreceiver.yaml, then MICRECEIVER_* environment overrides
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

const (
	configName = "micreceiver"
	configType = "yaml"
	envPrefix  = "MICRECEIVER"
)

// Config is everything the receiver binary needs to run
type Config struct {
	Bind           string        `mapstructure:"bind"`
	Port           int           `mapstructure:"port"`
	Device         int           `mapstructure:"device"`
	Backend        string        `mapstructure:"backend"`
	ReadChunk      int           `mapstructure:"read_chunk"`
	BufferDuration time.Duration `mapstructure:"buffer_duration"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`

	TUI bool `mapstructure:"tui"`

	MDNS struct {
		Enabled     bool   `mapstructure:"enabled"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"mdns"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Record struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"record"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bind", "0.0.0.0")
	v.SetDefault("port", receiver.DefaultPort)
	v.SetDefault("device", 0)
	v.SetDefault("backend", "malgo")
	v.SetDefault("read_chunk", receiver.DefaultReadChunk)
	v.SetDefault("buffer_duration", receiver.DefaultBufferDuration)
	v.SetDefault("poll_interval", receiver.DefaultPollInterval)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("tui", true)
	v.SetDefault("mdns.enabled", true)
	v.SetDefault("mdns.service_name", "")
	v.SetDefault("http.addr", "")
	v.SetDefault("record.dir", "")
}

// Load reads the configuration. An empty path searches the working
// directory for micreceiver.yaml and tolerates its absence; an explicit
// path must exist.
func Load(path string) (*Config, error) {
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
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || (!errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// Receiver converts the file settings into a receiver.Config
func (c *Config) Receiver() receiver.Config {
	return receiver.Config{
		BindAddress:    c.Bind,
		Port:           c.Port,
		DeviceID:       c.Device,
		ReadChunk:      c.ReadChunk,
		BufferDuration: c.BufferDuration,
		PollInterval:   c.PollInterval,
	}
}
