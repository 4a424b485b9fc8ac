package config

const (
	defaultConfigPath         = "~/.config/pepper/config.toml"
	defaultRuntimeDir         = "~/.local/state/pepper"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultDeviceSource       = SourceUDisks
	defaultSettleDelayMS      = 300
	defaultGracePeriodSeconds = 5
	defaultUsercodeLogFile    = "log.txt"
	defaultJournalIdentifier  = "pepper2-usercode"
)

// Device source names.
const (
	SourceUDisks  = "udisks"
	SourceNetlink = "netlink"
)

var (
	defaultMountRoots    = []string{"/media", "/run/media", "/mnt"}
	defaultPythonCommand = []string{"python3", "-u", "main.py"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RuntimeDir: defaultRuntimeDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Devices: Devices{
			Source:        defaultDeviceSource,
			SettleDelayMS: defaultSettleDelayMS,
			MountRoots:    append([]string(nil), defaultMountRoots...),
		},
		Usercode: Usercode{
			GracePeriodSeconds: defaultGracePeriodSeconds,
			LogFileName:        defaultUsercodeLogFile,
			Journal:            true,
			JournalIdentifier:  defaultJournalIdentifier,
			PythonCommand:      append([]string(nil), defaultPythonCommand...),
		},
	}
}
