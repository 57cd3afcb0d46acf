package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{"set all values", "1.0.0", "abc123", "2024-01-15"},
		{"set dev version", "dev", "HEAD", "unknown"},
		{"set empty values", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("connection refused")
	err := exitError(exitServiceUnavailable, "Failed to list frameworks", cause)

	assert.Equal(t, "Failed to list frameworks: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, exitServiceUnavailable, ExitCode(err))

	assert.Equal(t, "Bare", exitError(exitInvalidArgument, "Bare", nil).Error())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, exitFailure, ExitCode(errors.New("plain")))

	wrapped := errors.Join(errors.New("context"), exitError(exitInvalidArgument, "bad", nil))
	assert.Equal(t, exitInvalidArgument, ExitCode(wrapped))
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"launch", "status", "kill", "frameworks", "serve", "version", "doctor"}
	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "missing command %s", name)
	}
}

func TestCLILogLevel(t *testing.T) {
	tests := []struct {
		name       string
		verbose    bool
		configured string
		want       zapcore.Level
	}{
		{"default", false, "", zapcore.InfoLevel},
		{"configured warn", false, "warn", zapcore.WarnLevel},
		{"configured error", false, "ERROR", zapcore.ErrorLevel},
		{"configured debug", false, "debug", zapcore.DebugLevel},
		{"verbose wins", true, "error", zapcore.DebugLevel},
		{"unknown falls back", false, "loud", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cliLogLevel(tt.verbose, tt.configured))
		})
	}
}
