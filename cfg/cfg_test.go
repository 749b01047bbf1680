package cfg_test

import (
	"testing"

	"github.com/segmentlfs/lfs/cfg"
	"github.com/stretchr/testify/require"
)

func validConfig() *cfg.Config {
	return &cfg.Config{
		Flash: cfg.FlashConfig{
			BlockSizeSectors:  1,
			SegmentSizeBlocks: 256,
			FlashSizeSegments: 1024,
			WearLimit:         1000,
		},
		Cache:   cfg.CacheConfig{Capacity: 64},
		Cleaner: cfg.CleanerConfig{StartThreshold: 10, EndThreshold: 20},
	}
}

func TestValidateConfigRejectsExcessiveWearLimit(t *testing.T) {
	c := validConfig()
	c.Flash.WearLimit = cfg.MaxWearLimit + 1
	require.Error(t, cfg.ValidateConfig(c))
}

func TestValidateConfigRejectsExcessiveBlockCount(t *testing.T) {
	c := validConfig()
	c.Flash.SegmentSizeBlocks = 2000
	c.Flash.FlashSizeSegments = 2000
	require.Error(t, cfg.ValidateConfig(c))
}

func TestValidateConfigRejectsInvertedCleanerThresholds(t *testing.T) {
	c := validConfig()
	c.Cleaner.StartThreshold, c.Cleaner.EndThreshold = 20, 10
	require.Error(t, cfg.ValidateConfig(c))
}

func TestValidateConfigRejectsNonPowerOfTwoSegmentSize(t *testing.T) {
	c := validConfig()
	c.Flash.SegmentSizeBlocks = 200
	require.Error(t, cfg.ValidateConfig(c))
}

func TestValidateConfigRejectsCleanerStopThresholdAboveFlashSize(t *testing.T) {
	c := validConfig()
	c.Cleaner.EndThreshold = c.Flash.FlashSizeSegments + 1
	require.Error(t, cfg.ValidateConfig(c))
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	require.NoError(t, cfg.ValidateConfig(validConfig()))
}

func TestRationalizeResolvesUnsetOwnership(t *testing.T) {
	c := validConfig()
	c.FileSystem.Uid = -1
	c.FileSystem.Gid = -1

	require.NoError(t, cfg.Rationalize(c))

	require.NotEqual(t, -1, c.FileSystem.Uid)
	require.NotEqual(t, -1, c.FileSystem.Gid)
}

func TestRationalizeForcesTraceLoggingUnderDebug(t *testing.T) {
	c := validConfig()
	c.Debug.ExitOnInvariantViolation = true

	require.NoError(t, cfg.Rationalize(c))

	require.Equal(t, cfg.TraceLogSeverity, c.Logging.Severity)
}

func TestOctalRoundTrip(t *testing.T) {
	var o cfg.Octal
	require.NoError(t, o.UnmarshalText([]byte("755")))
	require.Equal(t, cfg.Octal(0o755), o)

	text, err := o.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "755", string(text))
}

func TestLogSeverityRejectsUnknownLevel(t *testing.T) {
	var l cfg.LogSeverity
	require.Error(t, l.UnmarshalText([]byte("NOISY")))
}
