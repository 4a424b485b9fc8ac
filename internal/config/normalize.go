package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDevices(); err != nil {
		return err
	}
	c.normalizeUsercode()
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir
	}
	var err error
	if c.Paths.RuntimeDir, err = expandPath(c.Paths.RuntimeDir); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDevices() error {
	c.Devices.Source = strings.ToLower(strings.TrimSpace(c.Devices.Source))
	if c.Devices.Source == "" {
		c.Devices.Source = defaultDeviceSource
	}
	if len(c.Devices.MountRoots) == 0 {
		c.Devices.MountRoots = append([]string(nil), defaultMountRoots...)
		return nil
	}
	roots := make([]string, 0, len(c.Devices.MountRoots))
	seen := make(map[string]struct{}, len(c.Devices.MountRoots))
	for _, root := range c.Devices.MountRoots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(root))
		if err != nil {
			return fmt.Errorf("devices.mount_roots: %w", err)
		}
		if _, exists := seen[expanded]; exists {
			continue
		}
		seen[expanded] = struct{}{}
		roots = append(roots, expanded)
	}
	c.Devices.MountRoots = roots
	return nil
}

func (c *Config) normalizeUsercode() {
	c.Usercode.LogFileName = strings.TrimSpace(c.Usercode.LogFileName)
	if c.Usercode.LogFileName == "" {
		c.Usercode.LogFileName = defaultUsercodeLogFile
	}
	c.Usercode.JournalIdentifier = strings.TrimSpace(c.Usercode.JournalIdentifier)
	if c.Usercode.JournalIdentifier == "" {
		c.Usercode.JournalIdentifier = defaultJournalIdentifier
	}
	command := make([]string, 0, len(c.Usercode.PythonCommand))
	for _, part := range c.Usercode.PythonCommand {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			command = append(command, trimmed)
		}
	}
	c.Usercode.PythonCommand = command
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
