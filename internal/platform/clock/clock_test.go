package clock

import (
	"testing"
	"time"
)

func TestFixed_AdvanceAndSet(t *testing.T) {
	start := time.Date(2025, 5, 27, 20, 30, 0, 0, time.UTC)
	c := NewFixed(start)

	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}

	c.Advance(15 * time.Minute)
	if want := start.Add(15 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("expected %v, got %v", want, c.Now())
	}

	later := start.Add(24 * time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("expected %v, got %v", later, c.Now())
	}
}

func TestSystemClock_Advances(t *testing.T) {
	var c Clock = SystemClock{}
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Error("system clock went backwards")
	}
}
