package constants

import "testing"

func TestMakefileFormatVersion(t *testing.T) {
	if MakefileFormatVersion <= 0 {
		t.Errorf("MakefileFormatVersion = %d, want positive", MakefileFormatVersion)
	}
}

func TestDefaultMaxProcessorCount(t *testing.T) {
	if DefaultMaxProcessorCount <= 0 {
		t.Errorf("DefaultMaxProcessorCount = %d, want positive", DefaultMaxProcessorCount)
	}
}

func TestCLIName(t *testing.T) {
	if CLIName != "forge" {
		t.Errorf("CLIName = %q, want %q", CLIName, "forge")
	}
}
