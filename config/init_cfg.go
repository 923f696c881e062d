package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
)

// Config is the top-level, viper-unmarshaled configuration tree.
type Config struct {
	ZapConf       *ZapConfig     `mapstructure:"zap"`
	DBConfig      *DBConfig      `mapstructure:"db"`
	TracingConfig *TracingConfig `mapstructure:"tracing"`
}

var (
	Viper *viper.Viper

	// conf is swapped atomically on every config file reload so readers
	// never observe a partially-unmarshaled Config.
	conf atomic.Pointer[Config]
)

// InitConfig loads path with viper and installs a watch that hot-reloads
// the whole Config tree on change. tracing.storage is the only section
// the save queue re-reads per operation; everything else is read once
// at construction time.
func InitConfig(path string) error {
	Viper = viper.New()
	Viper.SetConfigFile(path)
	Viper.SetConfigType("yaml")
	if err := Viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	c := new(Config)
	if err := Viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	conf.Store(c)

	Viper.WatchConfig()
	Viper.OnConfigChange(func(e fsnotify.Event) {
		next := new(Config)
		if err := Viper.Unmarshal(next); err != nil {
			fmt.Println("config file changed but failed to reload:", e.Name, err)
			return
		}
		conf.Store(next)
	})
	return nil
}

// Get returns the current, atomically-loaded Config tree, or an empty
// Config if InitConfig has not run yet (each section's own accessor is
// nil-safe, so callers get sensible defaults rather than a panic).
func Get() *Config {
	c := conf.Load()
	if c == nil {
		return &Config{}
	}
	return c
}

func GetZapConf() *ZapConfig {
	return Get().ZapConf
}

func GetDBConf() *DBConfig {
	return Get().DBConfig
}

func GetTracingConf() *TracingConfig {
	return Get().TracingConfig
}
