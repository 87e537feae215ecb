package config

import "testing"

func TestDefaultPopulatesBaselineParameters(t *testing.T) {
	c := Default()
	if c.Storage.DataDir == "" {
		t.Fatalf("expected non-empty default data dir")
	}
	if c.Epoch.BlocksPerEpoch == 0 {
		t.Fatalf("expected non-zero default blocks per epoch")
	}
	if c.Voting.MaxLockCount == 0 {
		t.Fatalf("expected non-zero default max lock count")
	}
}

func TestLoadWithMissingConfigFileFallsBackToDefaults(t *testing.T) {
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load with no config file present should not error: %v", err)
	}
	if c.Epoch.BlocksPerEpoch != Default().Epoch.BlocksPerEpoch {
		t.Fatalf("expected default blocks per epoch when no config file is present")
	}
}
