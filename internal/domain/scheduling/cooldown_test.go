package scheduling

import (
	"testing"
	"time"
)

func TestGate_CanBook(t *testing.T) {
	g := NewGate(DefaultCooldown)
	last := testNow

	tests := []struct {
		name    string
		last    *time.Time
		elapsed time.Duration
		want    bool
	}{
		{"never cancelled", nil, 0, true},
		{"just cancelled", &last, 0, false},
		{"one second short", &last, 2*time.Minute - time.Second, false},
		{"exactly two minutes", &last, 2 * time.Minute, true},
		{"later", &last, time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.CanBook(tt.last, testNow.Add(tt.elapsed)); got != tt.want {
				t.Errorf("CanBook = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGate_TimeUntilCanBook(t *testing.T) {
	g := NewGate(DefaultCooldown)
	last := testNow

	if d, blocked := g.TimeUntilCanBook(nil, testNow); blocked || d != 0 {
		t.Errorf("expected (0, false), got (%s, %v)", d, blocked)
	}
	if d, blocked := g.TimeUntilCanBook(&last, testNow.Add(30*time.Second)); !blocked || d != 90*time.Second {
		t.Errorf("expected (1m30s, true), got (%s, %v)", d, blocked)
	}
	if d, blocked := g.TimeUntilCanBook(&last, testNow.Add(2*time.Minute)); blocked || d != 0 {
		t.Errorf("expected (0, false) at the boundary, got (%s, %v)", d, blocked)
	}
}

func TestNewGate_Default(t *testing.T) {
	if g := NewGate(0); g.Interval != DefaultCooldown {
		t.Errorf("expected default interval, got %s", g.Interval)
	}
	if g := NewGate(5 * time.Minute); g.Interval != 5*time.Minute {
		t.Errorf("expected 5m, got %s", g.Interval)
	}
}
