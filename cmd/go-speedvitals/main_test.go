package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantExit int
	}{
		{
			name:     "help command",
			args:     []string{"--help"},
			wantExit: 0,
		},
		{
			name:     "version flag",
			args:     []string{"--version"},
			wantExit: 0,
		},
		{
			name:     "config help",
			args:     []string{"config"},
			wantExit: 0,
		},
		{
			name:     "invalid command",
			args:     []string{"invalid-command"},
			wantExit: 1,
		},
		{
			name:     "analyze without input",
			args:     []string{"analyze", "--api-key", "sv_test"},
			wantExit: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			assert.Equal(t, tt.wantExit, run(tt.args))
		})
	}
}
