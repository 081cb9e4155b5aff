// Package clock implements the kernel's monotonic tick base (spec component C1):
// a 64-bit tick counter advanced exclusively by the tick-timer ISR, plus the
// duration/time-point arithmetic built on top of it.
//
// Overflow of the 64-bit counter is treated as impossible, matching distortos's
// TickClock: at one tick per microsecond this would take roughly 292000 years.
package clock

// Duration is a signed count of ticks.
type Duration int64

// TimePoint is an absolute tick count: epoch + Duration.
type TimePoint int64

// Add returns t advanced by d ticks (d may be negative).
func (t TimePoint) Add(d Duration) TimePoint { return t + TimePoint(d) }

// Sub returns the signed tick difference t - u.
func (t TimePoint) Sub(u TimePoint) Duration { return Duration(t - u) }

// Before reports whether t is strictly earlier than u.
func (t TimePoint) Before(u TimePoint) bool { return t < u }

// After reports whether t is strictly later than u.
func (t TimePoint) After(u TimePoint) bool { return t > u }

// Clock is the monotonic tick counter. The zero value starts at tick 0 and is
// ready to use; a *Clock is owned by exactly one Scheduler and is only ever
// advanced from Tick, which the tick-timer ISR hook calls under the
// interrupt-masking guard.
type Clock struct {
	now TimePoint
}

// Now returns the current tick count.
func (c *Clock) Now() TimePoint { return c.now }

// Tick advances the clock by exactly one tick and returns the new value.
// Callers must hold the scheduler's critical section.
func (c *Clock) Tick() TimePoint {
	c.now++
	return c.now
}
