package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateDevices(); err != nil {
		return err
	}
	if err := c.validateUsercode(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateDevices() error {
	switch c.Devices.Source {
	case SourceUDisks, SourceNetlink:
	default:
		return fmt.Errorf("devices.source: unsupported value %q (want %s or %s)", c.Devices.Source, SourceUDisks, SourceNetlink)
	}
	if c.Devices.SettleDelayMS < 0 {
		return errors.New("devices.settle_delay_ms must be zero or positive")
	}
	return nil
}

func (c *Config) validateUsercode() error {
	if c.Usercode.GracePeriodSeconds <= 0 {
		return errors.New("usercode.grace_period_seconds must be positive")
	}
	if len(c.Usercode.PythonCommand) == 0 {
		return errors.New("usercode.python_command must not be empty")
	}
	if filepath.Base(c.Usercode.LogFileName) != c.Usercode.LogFileName {
		return fmt.Errorf("usercode.log_file_name %q must be a bare file name", c.Usercode.LogFileName)
	}
	return nil
}
