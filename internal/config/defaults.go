package config

const (
	defaultConfigPath     = "~/.config/formlo/config.toml"
	defaultBackendURL     = "http://127.0.0.1:8000/api"
	defaultRequestTimeout = 30
	defaultDataDir        = "~/.local/share/formlo"
	defaultLogDir         = "~/.local/share/formlo/logs"
	defaultMaxFileMiB     = 10
	defaultPollInterval   = 2
	defaultPollTimeout    = 600
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

func defaultAllowedExtensions() []string {
	return []string{".pdf", ".docx", ".txt"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: Backend{
			URL:            defaultBackendURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Upload: Upload{
			MaxFileMiB:        defaultMaxFileMiB,
			AllowedExtensions: defaultAllowedExtensions(),
		},
		Tracker: Tracker{
			PollInterval: defaultPollInterval,
			PollTimeout:  defaultPollTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
