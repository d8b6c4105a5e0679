package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBackupFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"valid filename", "fleet-backup-2026-01-08-143022.tar.gz", false},
		{"empty filename", "", true},
		{"wrong prefix", "other-backup-2026-01-08-143022.tar.gz", true},
		{"wrong suffix", "fleet-backup-2026-01-08-143022.zip", true},
		{"path traversal", "../fleet-backup-2026-01-08-143022.tar.gz", false}, // Base() strips it
		{"embedded traversal", "fleet-backup-..-143022.tar.gz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateBackupFilename(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotContains(t, got, "/")
		})
	}
}
