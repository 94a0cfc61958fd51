package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_LevelsAndFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		format  string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "defaults", want: zapcore.InfoLevel},
		{name: "debug_console", level: "debug", format: "console", want: zapcore.DebugLevel},
		{name: "upper_case", level: "WARN", format: "JSON", want: zapcore.WarnLevel},
		{name: "bad_level", level: "loud", wantErr: true},
		{name: "bad_format", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q,%q) err=%v wantErr=%v", tt.level, tt.format, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !l.Core().Enabled(tt.want) {
				t.Fatalf("level %s not enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1) {
				t.Fatalf("level below %s unexpectedly enabled", tt.want)
			}
		})
	}
}
