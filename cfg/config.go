// Package cfg holds the mount/format configuration surface: flash
// geometry, cache and cleaner tuning, logging, and the default inode
// ownership/permission bits. Grounded on gcsfuse's cfg package — a single
// Config struct bound to pflag/viper, decoded with mapstructure, validated
// and rationalized as separate passes over the same struct.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	AppName string `yaml:"app-name"`

	Debug DebugConfig `yaml:"debug"`

	Flash FlashConfig `yaml:"flash"`

	Cache CacheConfig `yaml:"cache"`

	Cleaner CleanerConfig `yaml:"cleaner"`

	Logging LoggingConfig `yaml:"logging"`

	FileSystem FileSystemConfig `yaml:"file-system"`

	Metrics MetricsConfig `yaml:"metrics"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

// FlashConfig is the §6 superblock geometry: fixed at format time by mklfs.
// The log layer reads the geometry back from the superblock; lfsmount and
// fsck still use the block and segment sizes to size the device's erase
// blocks when opening the image.
type FlashConfig struct {
	BlockSizeSectors  int `yaml:"block-size-sectors"`
	SegmentSizeBlocks int `yaml:"segment-size-blocks"`
	FlashSizeSegments int `yaml:"flash-size-segments"`
	WearLimit         int `yaml:"wear-limit"`
}

type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// CleanerConfig is §4.3/§4.5's cost-benefit cleaner tuning plus the
// checkpoint interval that gates §4.2's "write a checkpoint" step.
type CleanerConfig struct {
	CheckpointInterval int `yaml:"checkpoint-interval"`
	StartThreshold     int `yaml:"start-threshold"`
	EndThreshold       int `yaml:"end-threshold"`
}

type LoggingConfig struct {
	Severity  LogSeverity            `yaml:"severity"`
	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// FileSystemConfig is applied to the root directory at format time (§6's
// format utility writes the initial root directory inode with these bits).
type FileSystemConfig struct {
	FileMode Octal `yaml:"file-mode"`
	DirMode  Octal `yaml:"dir-mode"`
	Uid      int   `yaml:"uid"`
	Gid      int   `yaml:"gid"`
}

// MetricsConfig controls the optional Prometheus scrape endpoint
// cmd/lfsmount serves. Port 0 (the default) disables it; mklfs and fsck
// ignore this field entirely.
type MetricsConfig struct {
	Port int `yaml:"port"`
}

// BindFlags registers every flag named in §6's CLI surface
// (`mklfs [-b|--block=N] [-l|--segment=N] [-s|--segments=N]
// [-w|--wearLimit=N] file`; the mount binary's
// `--cache=N --interval=N --start=N --stop=N`) plus the ambient flags
// (logging, default ownership) onto a single FlagSet. Individual commands
// only read the subset relevant to them.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "", "The application name of this mount.")
	if err = viper.BindPFlag("app-name", flagSet.Lookup("app-name")); err != nil {
		return err
	}

	flagSet.BoolP("debug-invariants", "", false, "Exit when internal invariants are violated.")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug-invariants")); err != nil {
		return err
	}

	flagSet.IntP("block", "b", 1, "Block size, in sectors.")
	if err = viper.BindPFlag("flash.block-size-sectors", flagSet.Lookup("block")); err != nil {
		return err
	}

	flagSet.IntP("segment", "l", 256, "Segment size, in blocks.")
	if err = viper.BindPFlag("flash.segment-size-blocks", flagSet.Lookup("segment")); err != nil {
		return err
	}

	flagSet.IntP("segments", "s", 1024, "Flash size, in segments.")
	if err = viper.BindPFlag("flash.flash-size-segments", flagSet.Lookup("segments")); err != nil {
		return err
	}

	flagSet.IntP("wearLimit", "w", 100000, "Maximum erase count tolerated per erase block.")
	if err = viper.BindPFlag("flash.wear-limit", flagSet.Lookup("wearLimit")); err != nil {
		return err
	}

	flagSet.IntP("cache", "", 64, "Number of sealed segments kept in the read cache.")
	if err = viper.BindPFlag("cache.capacity", flagSet.Lookup("cache")); err != nil {
		return err
	}

	flagSet.IntP("interval", "", 32, "Seal this many segments between checkpoints.")
	if err = viper.BindPFlag("cleaner.checkpoint-interval", flagSet.Lookup("interval")); err != nil {
		return err
	}

	flagSet.IntP("start", "", 10, "Run the cleaner only when clean-segment count falls at or below this.")
	if err = viper.BindPFlag("cleaner.start-threshold", flagSet.Lookup("start")); err != nil {
		return err
	}

	flagSet.IntP("stop", "", 20, "Clean until clean-segment count reaches this.")
	if err = viper.BindPFlag("cleaner.end-threshold", flagSet.Lookup("stop")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.IntP("file-mode", "", 0644, "Permission bits for new files, in octal.")
	if err = viper.BindPFlag("file-system.file-mode", flagSet.Lookup("file-mode")); err != nil {
		return err
	}

	flagSet.IntP("dir-mode", "", 0755, "Permission bits for new directories, in octal.")
	if err = viper.BindPFlag("file-system.dir-mode", flagSet.Lookup("dir-mode")); err != nil {
		return err
	}

	flagSet.IntP("uid", "", -1, "UID owner of the root directory; -1 uses the mounting user.")
	if err = viper.BindPFlag("file-system.uid", flagSet.Lookup("uid")); err != nil {
		return err
	}

	flagSet.IntP("gid", "", -1, "GID owner of the root directory; -1 uses the mounting user.")
	if err = viper.BindPFlag("file-system.gid", flagSet.Lookup("gid")); err != nil {
		return err
	}

	flagSet.IntP("metrics-port", "", 0, "Serve Prometheus metrics on this port; 0 disables the endpoint.")
	if err = viper.BindPFlag("metrics.port", flagSet.Lookup("metrics-port")); err != nil {
		return err
	}

	return nil
}
