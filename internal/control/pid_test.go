package control

import (
	"math"
	"testing"
	"time"
)

// fakeClock advances a fixed step per call so controller behavior is
// deterministic.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestPID(kp, ki, kd float64, step time.Duration) *PID {
	p := New(kp, ki, kd)
	clock := &fakeClock{t: time.Unix(1000, 0), step: step}
	p.now = clock.now
	return p
}

func TestUpdateIsDeterministic(t *testing.T) {
	run := func() []float64 {
		p := newTestPID(0.6, 0.2, 0.3, time.Second)
		var outputs []float64
		for _, e := range []float64{0.25, 0.15, -0.05, 0.1} {
			outputs = append(outputs, p.Update(e))
		}
		return outputs
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("output %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestIntegralGrowsUnderConstantError(t *testing.T) {
	p := newTestPID(0.5, 0.1, 0.1, time.Second)

	prev := 0.0
	for i := 0; i < 20; i++ {
		p.Update(0.2)
		if i == 0 {
			// First call has no elapsed time baseline yet.
			prev = p.Integral()
			continue
		}
		if p.Integral() <= prev {
			t.Fatalf("integral did not grow at call %d: %v <= %v", i, p.Integral(), prev)
		}
		prev = p.Integral()
	}
}

func TestFirstCallZeroDTIsFinite(t *testing.T) {
	p := New(0.6, 0.2, 0.3)
	fixed := time.Unix(2000, 0)
	p.now = func() time.Time { return fixed }

	// Clock never advances: dt is zero on every call, including the first.
	for i := 0; i < 3; i++ {
		out := p.Update(0.25)
		if math.IsNaN(out) || math.IsInf(out, 0) {
			t.Fatalf("call %d returned non-finite output %v", i, out)
		}
		if out != 0.6*0.25 {
			t.Fatalf("call %d = %v, want pure proportional %v", i, out, 0.6*0.25)
		}
	}
}

// Confidence sequence [0.60, 0.70, 0.90] against target 0.85 yields errors
// [0.25, 0.15, -0.05]: the output must be positive twice, then drop, so the
// clamped interval moves down and then back up.
func TestOutputTracksErrorSign(t *testing.T) {
	p := newTestPID(0.6, 0.2, 0.3, time.Second)
	target := 0.85

	out1 := p.Update(target - 0.60)
	out2 := p.Update(target - 0.70)
	out3 := p.Update(target - 0.90)

	if out1 <= 0 {
		t.Fatalf("output for error 0.25 = %v, want positive", out1)
	}
	if out2 <= 0 {
		t.Fatalf("output for error 0.15 = %v, want positive", out2)
	}
	if out3 >= out2 {
		t.Fatalf("output for error -0.05 = %v, want below %v", out3, out2)
	}
}

func TestResetClearsState(t *testing.T) {
	p := newTestPID(0.5, 0.1, 0.1, time.Second)
	for i := 0; i < 5; i++ {
		p.Update(0.3)
	}
	if p.Integral() == 0 {
		t.Fatal("integral should be non-zero before reset")
	}

	p.Reset()
	if p.Integral() != 0 {
		t.Fatalf("integral after reset = %v, want 0", p.Integral())
	}
}

func TestClamp(t *testing.T) {
	min, max := 500*time.Millisecond, 10*time.Second

	testCases := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"below min", 100 * time.Millisecond, min},
		{"negative", -2 * time.Second, min},
		{"within range", 2 * time.Second, 2 * time.Second},
		{"above max", time.Minute, max},
		{"at min", min, min},
		{"at max", max, max},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clamp(tc.in, min, max); got != tc.want {
				t.Fatalf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
