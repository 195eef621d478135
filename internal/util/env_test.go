package util

import "testing"

func TestGetenvDefault(t *testing.T) {
	t.Setenv("STEPFLOW_TEST_KEY", "set")
	if got := GetenvDefault("STEPFLOW_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("GetenvDefault = %q, want set", got)
	}
	if got := GetenvDefault("STEPFLOW_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetenvDefault = %q, want fallback", got)
	}
	t.Setenv("STEPFLOW_TEST_EMPTY", "")
	if got := GetenvDefault("STEPFLOW_TEST_EMPTY", "fallback"); got != "fallback" {
		t.Errorf("GetenvDefault for empty = %q, want fallback", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"OFF", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("STEPFLOW_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("STEPFLOW_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
	if got := ParseBoolEnv("STEPFLOW_TEST_BOOL_MISSING", true); !got {
		t.Error("unset variable should return default")
	}
}
