package backoff_test

import (
	"testing"
	"time"

	"github.com/scribeflow/sched/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},  // 1 * 2^0
		{2, 2 * time.Second},  // 1 * 2^1
		{3, 4 * time.Second},  // 1 * 2^2
		{4, 8 * time.Second},  // 1 * 2^3
		{5, 16 * time.Second}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(10); got != 10*time.Second {
		t.Errorf("Delay(10) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponentialWithJitter_StaysInEqualJitterBand(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Hour)

	for attempt := 1; attempt <= 6; attempt++ {
		full := time.Duration(1<<uint(attempt-1)) * time.Second
		for range 100 {
			got := e.Delay(attempt)
			if got < full/2 || got >= full {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v)", attempt, got, full/2, full)
			}
		}
	}
}

func TestExponentialWithJitter_CapsAtMax(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 4*time.Second)

	for range 100 {
		if got := e.Delay(20); got >= 4*time.Second {
			t.Fatalf("Delay(20) = %v, want < %v (jittered cap)", got, 4*time.Second)
		}
	}
}

func TestDefaultStrategy_IsJittered(t *testing.T) {
	s := backoff.DefaultStrategy()
	if _, ok := s.(*backoff.ExponentialWithJitter); !ok {
		t.Errorf("DefaultStrategy() = %T, want *ExponentialWithJitter", s)
	}
}
