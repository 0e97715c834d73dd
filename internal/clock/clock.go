// Package clock abstracts wall-clock access so scheduler and billing code can
// be exercised with a controllable time source.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func New() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }
