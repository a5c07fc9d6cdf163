// Package envelope provides one-pole smoothers used to glide gain values
// toward a moving target.
package envelope

import (
	"math"
)

// Coefficient returns the one-pole smoothing coefficient for a time constant,
// exp(-1 / (sampleRate * seconds)). A non-positive time constant yields 0,
// which makes the smoother jump straight to its target.
func Coefficient(sampleRate, seconds float64) float64 {
	if sampleRate <= 0 || seconds <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (sampleRate * seconds))
}

// Follower glides toward a target with a single coefficient.
type Follower struct {
	seconds float64
	coef    float64
	value   float64
	initial float64
}

// NewFollower creates a follower with the given time constant in seconds,
// starting at initial.
func NewFollower(sampleRate, seconds, initial float64) *Follower {
	f := &Follower{
		seconds: seconds,
		value:   initial,
		initial: initial,
	}
	f.SetSampleRate(sampleRate)
	return f
}

// SetSampleRate recomputes the coefficient. It does not touch the state.
func (f *Follower) SetSampleRate(sampleRate float64) {
	f.coef = Coefficient(sampleRate, f.seconds)
}

// Coefficient returns the per-step coefficient.
func (f *Follower) Coefficient() float64 {
	return f.coef
}

// Step advances one step toward target and returns the new value.
func (f *Follower) Step(target float64) float64 {
	f.value = f.coef*f.value + (1-f.coef)*target
	return f.value
}

// StepN advances n per-sample steps toward a constant target in one update.
// This equals calling Step n times and keeps the time constant independent
// of block size.
func (f *Follower) StepN(target float64, n int) float64 {
	if n <= 0 {
		return f.value
	}
	c := math.Pow(f.coef, float64(n))
	f.value = c*f.value + (1-c)*target
	return f.value
}

// Value returns the current smoothed value.
func (f *Follower) Value() float64 {
	return f.value
}

// Reset returns the follower to its initial value.
func (f *Follower) Reset() {
	f.value = f.initial
}

// Direction selects which movement of an AttackRelease counts as attack.
type Direction int

const (
	// Falling attacks on a target below the current value, the way a gain
	// reducer clamps down fast and lets go slowly.
	Falling Direction = iota
	// Rising attacks on a target above the current value.
	Rising
)

// AttackRelease glides toward a target with separate coefficients for
// attack and release movement.
type AttackRelease struct {
	attack    float64 // seconds
	release   float64 // seconds
	direction Direction

	attackCoef  float64
	releaseCoef float64

	value   float64
	initial float64
}

// NewAttackRelease creates a smoother. Attack applies while the target is
// below the current value until SetAttackDirection says otherwise.
func NewAttackRelease(sampleRate, attack, release, initial float64) *AttackRelease {
	a := &AttackRelease{
		attack:  attack,
		release: release,
		value:   initial,
		initial: initial,
	}
	a.SetSampleRate(sampleRate)
	return a
}

// SetSampleRate recomputes both coefficients.
func (a *AttackRelease) SetSampleRate(sampleRate float64) {
	a.attackCoef = Coefficient(sampleRate, a.attack)
	a.releaseCoef = Coefficient(sampleRate, a.release)
}

// SetAttackDirection sets which movement uses the attack time.
func (a *AttackRelease) SetAttackDirection(d Direction) {
	a.direction = d
}

func (a *AttackRelease) coefFor(target float64) float64 {
	rising := target > a.value
	if rising == (a.direction == Rising) {
		return a.attackCoef
	}
	return a.releaseCoef
}

// Step advances one step toward target.
func (a *AttackRelease) Step(target float64) float64 {
	c := a.coefFor(target)
	a.value = c*a.value + (1-c)*target
	return a.value
}

// StepN advances n steps toward a constant target. The direction cannot
// change while the target is held, so one coefficient covers all n steps.
func (a *AttackRelease) StepN(target float64, n int) float64 {
	if n <= 0 {
		return a.value
	}
	c := math.Pow(a.coefFor(target), float64(n))
	a.value = c*a.value + (1-c)*target
	return a.value
}

// Value returns the current smoothed value.
func (a *AttackRelease) Value() float64 {
	return a.value
}

// Reset returns the smoother to its initial value.
func (a *AttackRelease) Reset() {
	a.value = a.initial
}
