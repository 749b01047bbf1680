package cfg

// GetDefaultLoggingConfig returns the configuration used before flags and
// config files have been parsed, mirroring gcsfuse's
// GetDefaultLoggingConfig.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		LogRotate: LogRotateLoggingConfig{
			MaxFileSizeMb:   64,
			BackupFileCount: 5,
			Compress:        true,
		},
	}
}

// GetDefaultFileSystemConfig returns the root directory ownership/mode
// mklfs falls back to when the corresponding flags are not supplied.
func GetDefaultFileSystemConfig() FileSystemConfig {
	return FileSystemConfig{
		FileMode: Octal(0644),
		DirMode:  Octal(0755),
		Uid:      -1,
		Gid:      -1,
	}
}
