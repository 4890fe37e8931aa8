package testutil

import "testing"

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	logger.Debug("debug line", "core_type", "Forge")
	logger.Info("info line", "mc_version", "1.20.1")
}
