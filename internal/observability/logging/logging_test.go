package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, env string
		wantErr    bool
		debug      bool
	}{
		{"info", "production", false, false},
		{"debug", "development", false, true},
		{"warn", "staging", false, false},
		{"loud", "production", true, false},
	}
	for _, tt := range tests {
		logger, err := New(tt.level, tt.env)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q, %q) error = %v", tt.level, tt.env, err)
			continue
		}
		if err != nil {
			continue
		}
		if got := logger.Core().Enabled(zap.DebugLevel); got != tt.debug {
			t.Errorf("New(%q, %q) debug enabled = %v", tt.level, tt.env, got)
		}
	}
}
