package gpu

import (
	"github.com/cockroachdb/errors"
)

// ErrObjectCreation marks every error produced by a failed GPU object creation.
var ErrObjectCreation = errors.New("gpu object creation failed")

// Created wraps a creation error so it names the object and matches
// ErrObjectCreation. A nil error stays nil.
func Created(what string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "failed to create %s", what), ErrObjectCreation)
}

type release struct {
	what string
	fn   func()
}

// Scope owns a set of GPU objects and destroys them in reverse order of
// registration. The zero value is ready to use.
type Scope struct {
	releases []release
}

// Own registers obj for destruction when the scope is released. When err is
// non-nil nothing is registered and the error is returned wrapped as by
// Created.
func (s *Scope) Own(what string, obj Destroyer, err error) error {
	if err != nil {
		return Created(what, err)
	}
	s.Defer(what, obj.Destroy)
	return nil
}

// Defer registers an arbitrary release function.
func (s *Scope) Defer(what string, fn func()) {
	s.releases = append(s.releases, release{what: what, fn: fn})
}

// Len reports how many releases are pending.
func (s *Scope) Len() int {
	return len(s.releases)
}

// Release runs every pending release, last registered first, and leaves the
// scope empty so it can be reused.
func (s *Scope) Release() {
	for i := len(s.releases) - 1; i >= 0; i-- {
		s.releases[i].fn()
	}
	s.releases = s.releases[:0]
}
