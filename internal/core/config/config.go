package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr            string
	OpsAddr         string
	RootDir         string
	Workers         int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	BuildVersion    string
}

func defaults(v *viper.Viper) {
	v.SetDefault("ADDR", ":8090")
	v.SetDefault("OPS_ADDR", ":9090")
	v.SetDefault("ROOT_DIR", ".")
	v.SetDefault("WORKERS", 10)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_CONSOLE", false)
	v.SetDefault("LOG_SAMPLE_N", 0)
	v.SetDefault("BUILD_VERSION", "dev")
}

// FromEnv reads the configuration from the environment, falling back to
// defaults for unset keys. An empty OPS_ADDR disables the ops listener.
func FromEnv() Config {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	return Config{
		Addr:            v.GetString("ADDR"),
		OpsAddr:         v.GetString("OPS_ADDR"),
		RootDir:         v.GetString("ROOT_DIR"),
		Workers:         v.GetInt("WORKERS"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		LogConsole:      v.GetBool("LOG_CONSOLE"),
		LogSampleN:      v.GetInt("LOG_SAMPLE_N"),
		BuildVersion:    v.GetString("BUILD_VERSION"),
	}
}

// Validate checks the settings and makes RootDir absolute.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout))
	}
	if c.RootDir == "" {
		c.RootDir = "."
	}
	abs, err := filepath.Abs(c.RootDir)
	if err != nil {
		errs = append(errs, fmt.Errorf("root dir: %w", err))
	} else if fi, err := os.Stat(abs); err != nil {
		errs = append(errs, fmt.Errorf("root dir: %w", err))
	} else if !fi.IsDir() {
		errs = append(errs, fmt.Errorf("root dir %s is not a directory", abs))
	} else {
		c.RootDir = abs
	}
	return errors.Join(errs...)
}
