// Package policy decides whether an actor may still mutate a record, as a
// pure function of the record's creation time, the actor's role, and the
// current time.
package policy

import (
	"fmt"
	"time"
)

// RoleAdmin is exempt from the edit window.
const RoleAdmin = "ADMIN"

// DefaultEditWindow is how long non-admin actors may mutate a record after
// its creation.
const DefaultEditWindow = 4 * 24 * time.Hour

// EditPolicy gates update and deletion of records by elapsed time since
// creation.
type EditPolicy struct {
	Window time.Duration
}

// New returns an EditPolicy with the supplied window, defaulting when zero or
// negative.
func New(window time.Duration) EditPolicy {
	if window <= 0 {
		window = DefaultEditWindow
	}
	return EditPolicy{Window: window}
}

// CanMutate reports whether the actor may mutate a record created at
// createdAt. Admins are always allowed; everyone else is allowed while the
// elapsed time is within the window, boundary inclusive.
func (p EditPolicy) CanMutate(createdAt time.Time, role string, now time.Time) bool {
	if role == RoleAdmin {
		return true
	}
	return now.Sub(createdAt) <= p.Window
}

// Reason names the window in a human-readable denial message.
func (p EditPolicy) Reason() string {
	days := p.Window.Hours() / 24
	return fmt.Sprintf("records can only be modified within %g days of creation; contact an administrator", days)
}
