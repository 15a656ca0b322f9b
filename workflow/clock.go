package workflow

import "time"

// Clock lets tests drive the presence hysteresis window.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
