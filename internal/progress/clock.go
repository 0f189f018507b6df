package progress

import "time"

// Clock reports a monotonic reading used for elapsed and speed figures.
type Clock interface {
	Now() time.Duration
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Duration

func (f ClockFunc) Now() time.Duration { return f() }

var processStart = time.Now()

// CPUClock returns a Clock reading the CPU time consumed by this process
// (user + system). Platforms without a CPU time source fall back to wall
// time since start.
func CPUClock() Clock {
	return ClockFunc(func() time.Duration {
		d, err := processCPUTime()
		if err != nil {
			return time.Since(processStart)
		}
		return d
	})
}
