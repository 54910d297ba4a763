// Here be option functions for constructing a new Builder.

package auth

import (
	"errors"
	"time"
)

type OptionFunc func(*Builder) error

// SetClock sets the function used to get the assertion's issue time.
//
// NOTE value must not be nil.
func SetClock(now func() time.Time) OptionFunc {
	return func(b *Builder) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		b.now = now
		return nil
	}
}
