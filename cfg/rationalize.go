package cfg

import "os"

// Rationalize updates config fields based on the values of other fields,
// the way gcsfuse's cfg.Rationalize derives e.g. logging severity from the
// debug flags. Here: an unset uid/gid (-1, the flag default) resolves to
// the mounting process's own ids, and debug mode forces trace logging.
func Rationalize(c *Config) error {
	if c.FileSystem.Uid == -1 {
		c.FileSystem.Uid = os.Getuid()
	}
	if c.FileSystem.Gid == -1 {
		c.FileSystem.Gid = os.Getgid()
	}

	if c.Debug.ExitOnInvariantViolation {
		c.Logging.Severity = TraceLogSeverity
	}

	return nil
}
