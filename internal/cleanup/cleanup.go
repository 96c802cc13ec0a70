// Package cleanup implements a LIFO stack of teardown actions.
//
// Image and chroot builds acquire resources (loop devices, mount points,
// temporary directories) that must be released in reverse order whether
// the build succeeds, fails, or is interrupted. Callers push an action
// per acquired resource and defer Run; Run pops entries as it goes so
// calling it again is harmless.
package cleanup

import (
	log "github.com/sirupsen/logrus"
)

type entry struct {
	name string
	f    func() error
}

type Stack struct {
	entries []entry
}

// Push registers a teardown action. The name is used for logging only.
func (s *Stack) Push(name string, f func() error) {
	s.entries = append(s.entries, entry{name: name, f: f})
}

// Run executes the registered actions in reverse order. Failures are
// logged but do not stop the remaining actions; the first error is
// returned so callers can surface leaked resources.
func (s *Stack) Run() error {
	var firstErr error

	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		log.Debugf("Cleanup: %s", e.name)
		err := e.f()
		if err != nil {
			log.WithError(err).Errorf("Cleanup step '%s' failed", e.name)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.entries = nil
	return firstErr
}

// Len returns the number of pending actions.
func (s *Stack) Len() int {
	return len(s.entries)
}
