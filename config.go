package pagecache

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	PoolSize  int `mapstructure:"pool_size"`
	ReplacerK int `mapstructure:"replacer_k"`

	Storage struct {
		Mode    string `mapstructure:"mode"`
		Workdir string `mapstructure:"workdir"`
	} `mapstructure:"storage"`

	Debug struct {
		DeadlockDetect bool `mapstructure:"deadlock_detect"`
	} `mapstructure:"debug"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = 64
	}
	if c.ReplacerK == 0 {
		c.ReplacerK = 2
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = "memory"
	}
	if c.Storage.Workdir == "" {
		c.Storage.Workdir = "."
	}
}

func (c *Config) validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("pagecache: pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.ReplacerK < 1 {
		return fmt.Errorf("pagecache: replacer_k must be >= 1, got %d", c.ReplacerK)
	}
	if _, err := storageMode(c.Storage.Mode); err != nil {
		return err
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
