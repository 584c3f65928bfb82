package antispam

import "time"

// Clock supplies the current time in whole seconds. All window math in the
// pipeline runs on this clock so tests can drive it deterministically.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 {
	return time.Now().Unix()
}

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock {
	return systemClock{}
}
