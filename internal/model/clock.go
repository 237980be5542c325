package model

import "time"

// Clock abstracts "now" so TTL guards and sweeps are testable with a fixed time.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
