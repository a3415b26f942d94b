// Package ids centralizes opaque identifier generation (command ids,
// event ids, cycle ids, lesson ids) on top of google/uuid, matching
// spec.md's treatment of these as opaque strings (design note: "lessons
// reference actions as strings, not object pointers").
package ids

import "github.com/google/uuid"

// New returns a fresh random identifier.
func New() string {
	return uuid.NewString()
}

// Prefixed returns a fresh identifier with a human-readable prefix, e.g.
// "cmd_3f9c2b10...".
func Prefixed(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
