package config

// TracingConfig holds the tracing.* keys. Storage is reloadable at
// runtime: config.InitConfig's viper watch swaps the whole *Config on
// every file change, and callers read it through GetTracingConf so a
// running save queue picks up the new value on its next append.
type TracingConfig struct {
	// Storage enables verbose trace logging in the save queue's append
	// path (spec.md §6, "tracing.storage").
	Storage bool `mapstructure:"storage" yaml:"storage"`
}

// Enabled reports whether storage tracing is on, treating a nil
// TracingConfig (config not loaded, or the section omitted) as off.
func (c *TracingConfig) Enabled() bool {
	return c != nil && c.Storage
}
