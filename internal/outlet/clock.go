package outlet

import "time"

var clockBase = time.Now()

// LocalClock returns monotonic seconds since process start. Sample
// timestamps and session start times share this clock.
func LocalClock() float64 {
	return time.Since(clockBase).Seconds()
}
