package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectCSV(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		content    string
		wantHeader []string
		wantRows   int64
		errMsg     string
	}{
		{
			name:       "header and rows",
			content:    "order_id,order_total\no-1,\"$1,234.50\"\no-2,12.00\n",
			wantHeader: []string{"order_id", "order_total"},
			wantRows:   2,
		},
		{
			name:       "header only",
			content:    "order_id,order_total\n",
			wantHeader: []string{"order_id", "order_total"},
			wantRows:   0,
		},
		{
			name:    "empty file",
			content: "",
			errMsg:  "failed to read CSV header",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "f"+string(rune('a'+i))+".csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			info, err := InspectCSV(path)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHeader, info.Header)
			assert.Equal(t, tt.wantRows, info.Rows)
		})
	}

	_, err := InspectCSV(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"order_id", "order_id"},
		{" Order Total ", "order_total"},
		{"utm-source", "utm_source"},
		{"1st_seen", "_1st_seen"},
		{"", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeIdentifier(tt.in))
		})
	}
}

func TestTextColumns(t *testing.T) {
	got := TextColumns([]string{"id", "Order Date"}, "TEXT", func(s string) string { return `"` + s + `"` })
	assert.Equal(t, `"id" TEXT, "order_date" TEXT`, got)
}
