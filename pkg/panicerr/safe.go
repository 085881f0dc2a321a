// Package panicerr converts panics in callbacks into ordinary errors so one
// misbehaving check or handler cannot take down a long-running loop.
package panicerr

import (
	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so that a panic is recovered and returned as an error, with
// the recovered value and stack preserved via conc's panics.Catcher.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}
