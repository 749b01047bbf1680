package main

import (
	"testing"

	"github.com/segmentlfs/lfs/cfg"
	"github.com/stretchr/testify/assert"
)

func TestGetFuseMountConfigSeverityMapping(t *testing.T) {
	testCases := []struct {
		severity  cfg.LogSeverity
		wantError bool
		wantDebug bool
	}{
		{severity: cfg.OffLogSeverity, wantError: false, wantDebug: false},
		{severity: cfg.ErrorLogSeverity, wantError: true, wantDebug: false},
		{severity: cfg.InfoLogSeverity, wantError: true, wantDebug: false},
		{severity: cfg.TraceLogSeverity, wantError: true, wantDebug: true},
	}

	for _, tc := range testCases {
		config := &cfg.Config{Logging: cfg.LoggingConfig{Severity: tc.severity}}
		mountCfg := getFuseMountConfig(config)

		assert.Equal(t, "lfs", mountCfg.FSName)
		assert.Equal(t, "lfs", mountCfg.Subtype)
		assert.Equal(t, tc.wantError, mountCfg.ErrorLogger != nil, "severity %s", tc.severity)
		assert.Equal(t, tc.wantDebug, mountCfg.DebugLogger != nil, "severity %s", tc.severity)
	}
}
