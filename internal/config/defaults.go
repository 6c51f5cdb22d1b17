package config

const (
	defaultConfigPath           = "~/.config/coursedrop/config.toml"
	defaultStagingDir           = "static/uploads"
	defaultCourseworkDir        = "CW"
	defaultSelfworkDir          = "SW"
	defaultLogDir               = ".coursedrop"
	defaultAPIBind              = "127.0.0.1:5000"
	defaultMaxUploadMB          = 32
	defaultUploadBurst          = 5
	defaultStagingMaxAgeHours   = 168
	defaultWatchDebounceMS      = 500
	defaultNotifyRequestTimeout = 10
	defaultMirrorRegion         = "us-east-1"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Category tokens recognized in filenames, in priority order.
const (
	CategoryCoursework = "CW"
	CategorySelfwork   = "SW"
)

// DefaultYears returns the year tokens in scan order.
func DefaultYears() []string {
	return []string{"1st", "2nd", "3rd", "4th"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:    defaultStagingDir,
			CourseworkDir: defaultCourseworkDir,
			SelfworkDir:   defaultSelfworkDir,
			LogDir:        defaultLogDir,
			APIBind:       defaultAPIBind,
		},
		Sorting: Sorting{
			Years: DefaultYears(),
		},
		Server: Server{
			MaxUploadMB: defaultMaxUploadMB,
		},
		Staging: Staging{
			MaxAgeHours: defaultStagingMaxAgeHours,
		},
		Watch: Watch{
			DebounceMS: defaultWatchDebounceMS,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Placed:         true,
			Rejected:       true,
		},
		Mirror: Mirror{
			Region: defaultMirrorRegion,
			UseSSL: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
