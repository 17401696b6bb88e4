package herald

import (
	"strconv"
	"testing"
	"time"
)

func TestIsFresh(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name      string
		timestamp string
		want      bool
	}{
		{"exact now", "1700000000", true},
		{"slightly old", "1699999990", true},
		{"slightly ahead", "1700000010", true},
		{"at past boundary", strconv.FormatInt(now.Unix()-300, 10), true},
		{"at future boundary", strconv.FormatInt(now.Unix()+300, 10), true},
		{"one past boundary", strconv.FormatInt(now.Unix()-301, 10), false},
		{"one ahead of boundary", strconv.FormatInt(now.Unix()+301, 10), false},
		{"hours old", "1699990000", false},
		{"empty", "", false},
		{"non-numeric", "yesterday", false},
		{"fractional seconds", "1700000000.5", false},
		{"trailing junk", "1700000000x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFresh(tt.timestamp, now, DefaultTolerance); got != tt.want {
				t.Errorf("IsFresh(%q) = %v, want %v", tt.timestamp, got, tt.want)
			}
		})
	}
}

func TestIsFresh_CustomTolerance(t *testing.T) {
	now := time.Unix(1700000000, 0)

	if !IsFresh("1699999990", now, 10*time.Second) {
		t.Error("timestamp exactly at a 10s tolerance should be fresh")
	}
	if IsFresh("1699999989", now, 10*time.Second) {
		t.Error("timestamp one second beyond a 10s tolerance should be stale")
	}
}
