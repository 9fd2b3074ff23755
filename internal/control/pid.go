// Package control implements the feedback controller that adapts the
// captioning cadence to the observed caption confidence.
package control

import "time"

// PID is a proportional-integral-derivative controller over a scalar error
// signal. Update converts an error into a cadence adjustment; the caller
// clamps the result into its own operational range, so different callers
// can apply different bounds. The controller itself never clamps.
//
// PID is single-owner state: only the captioning loop calls Update, so no
// internal locking is needed.
type PID struct {
	kp, ki, kd float64

	integral float64
	prevErr  float64
	prevAt   time.Time
	hasPrev  bool

	now func() time.Time
}

// New creates a controller with the given gains.
func New(kp, ki, kd float64) *PID {
	return &PID{
		kp:  kp,
		ki:  ki,
		kd:  kd,
		now: time.Now,
	}
}

// Update feeds one error observation into the controller and returns the
// raw control output. The integral and derivative terms are scaled by the
// wall-clock time elapsed since the previous call. On the first call, or
// when the clock has not advanced, the derivative term is zero so the
// output stays finite.
func (p *PID) Update(err float64) float64 {
	now := p.now()

	var dt float64
	if p.hasPrev {
		dt = now.Sub(p.prevAt).Seconds()
	}

	var derivative float64
	if dt > 0 {
		p.integral += err * dt
		derivative = (err - p.prevErr) / dt
	}

	output := p.kp*err + p.ki*p.integral + p.kd*derivative

	p.prevErr = err
	p.prevAt = now
	p.hasPrev = true
	return output
}

// Reset clears accumulated state so stale errors are not carried across
// operating point changes (e.g. a pipeline restart).
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.hasPrev = false
}

// Integral exposes the accumulated integral term for observation.
func (p *PID) Integral() float64 {
	return p.integral
}

// Clamp bounds an adjusted interval into [min, max].
func Clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
