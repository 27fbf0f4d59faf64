package clock

import (
	"testing"
	"time"
)

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	got := System{}.Now()
	if got.Before(before) || got.After(time.Now()) {
		t.Errorf("System.Now() = %v, outside [%v, now]", got, before)
	}
}

func TestFixture(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFixture(start)

	if !f.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", f.Now(), start)
	}

	f.Advance(6 * 24 * time.Hour)
	if want := start.Add(6 * 24 * time.Hour); !f.Now().Equal(want) {
		t.Errorf("after Advance, Now() = %v, want %v", f.Now(), want)
	}

	f.Set(start)
	if !f.Now().Equal(start) {
		t.Errorf("after Set, Now() = %v, want %v", f.Now(), start)
	}
}

func TestNewFixture_ZeroStartUsesNow(t *testing.T) {
	before := time.Now()
	f := NewFixture(time.Time{})
	if f.Now().Before(before) {
		t.Errorf("Now() = %v, want >= %v", f.Now(), before)
	}
}
