package common

import "time"

// Clock abstracts time for components that need deterministic tests,
// such as the publish rate window and the analytics cache.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
