package commands

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantOut []string
	}{
		{
			name:    "release version",
			version: "0.1.0",
			wantOut: []string{"shopflow 0.1.0", "commit: abc123", "built:  2024-05-01"},
		},
		{
			name:    "dev version",
			version: "dev",
			wantOut: []string{"shopflow dev", runtime.Version()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.version, "abc123", "2024-05-01")
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(nil)

			require.NoError(t, cmd.Execute())
			for _, want := range tt.wantOut {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestNewVersionCommand_JSON(t *testing.T) {
	cmd := NewVersionCommand("1.2.3", "abc123", "2024-05-01")
	cmd.Flags().String("output", "json", "")
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())

	var got map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "1.2.3", got["version"])
	assert.Equal(t, "abc123", got["commit"])
	assert.Equal(t, runtime.Version(), got["go"])
}
