package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckVersionCompatibility(t *testing.T) {
	tests := []struct {
		name          string
		engineVersion string
		configVersion string
		expectError   bool
		errorContains string
	}{
		{
			name:          "exact match",
			engineVersion: "0.4.0",
			configVersion: "0.4.0",
			expectError:   false,
		},
		{
			name:          "engine patch higher",
			engineVersion: "0.4.1",
			configVersion: "0.4.0",
			expectError:   false,
		},
		{
			name:          "config patch higher",
			engineVersion: "0.4.0",
			configVersion: "0.4.5",
			expectError:   false,
		},
		{
			name:          "same major minor different patch",
			engineVersion: "1.5.10",
			configVersion: "1.5.3",
			expectError:   false,
		},

		{
			name:          "engine minor higher",
			engineVersion: "0.5.0",
			configVersion: "0.4.0",
			expectError:   true,
			errorContains: "minor version mismatch",
		},
		{
			name:          "engine minor lower",
			engineVersion: "0.3.0",
			configVersion: "0.4.0",
			expectError:   true,
			errorContains: "minor version mismatch",
		},
		{
			name:          "major version differs",
			engineVersion: "1.0.0",
			configVersion: "0.4.0",
			expectError:   true,
			errorContains: "major version mismatch",
		},
		{
			name:          "engine is main",
			engineVersion: "main",
			configVersion: "0.4.0",
			expectError:   false,
		},
		{
			name:          "engine is main with different config",
			engineVersion: "main",
			configVersion: "0.5.0",
			expectError:   false,
		},
		{
			name:          "both are main",
			engineVersion: "main",
			configVersion: "main",
			expectError:   false,
		},
		{
			name:          "config is main",
			engineVersion: "0.4.0",
			configVersion: "main",
			expectError:   false,
		},

		// Edge cases with v prefix
		{
			name:          "v prefix on engine",
			engineVersion: "v0.4.0",
			configVersion: "0.4.0",
			expectError:   false,
		},
		{
			name:          "v prefix on config",
			engineVersion: "0.4.0",
			configVersion: "v0.4.0",
			expectError:   false,
		},
		{
			name:          "v prefix on both",
			engineVersion: "v0.4.0",
			configVersion: "v0.4.0",
			expectError:   false,
		},

		// Edge cases with prerelease and metadata
		{
			name:          "prerelease version",
			engineVersion: "0.4.0-alpha",
			configVersion: "0.4.0",
			expectError:   false,
		},
		{
			name:          "build metadata",
			engineVersion: "0.4.0+build123",
			configVersion: "0.4.0",
			expectError:   false,
		},

		// Invalid versions
		{
			name:          "invalid engine version",
			engineVersion: "not-a-version",
			configVersion: "0.4.0",
			expectError:   true,
			errorContains: "invalid engine version",
		},
		{
			name:          "invalid config version",
			engineVersion: "0.4.0",
			configVersion: "not-a-version",
			expectError:   true,
			errorContains: "invalid config version",
		},
		{
			name:          "empty engine version",
			engineVersion: "",
			configVersion: "0.4.0",
			expectError:   true,
			errorContains: "invalid engine version",
		},
		{
			name:          "empty config version",
			engineVersion: "0.4.0",
			configVersion: "",
			expectError:   true,
			errorContains: "invalid config version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersionCompatibility(tt.engineVersion, tt.configVersion)

			if tt.expectError {
				require.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCurrentVersionAcceptsItsOwnConfigs(t *testing.T) {
	require.NoError(t, CheckVersionCompatibility(GetVersion(), GetVersion()))
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v)
}
