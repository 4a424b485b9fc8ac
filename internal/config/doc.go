// Package config loads, normalizes, and validates pepper configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts) and
// reads TOML files. The Config type holds every knob the daemon and CLI need:
// where runtime files live, how devices are discovered, and how usercode is
// launched and logged.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical enum values, and clear validation errors.
package config
