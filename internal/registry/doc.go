// Package registry holds the in-memory catalogue of skill definitions keyed by
// (name, version). Stored skills are never mutated in place: updates replace
// the stored value with a fresh copy, so pointers handed to callers stay
// stable snapshots.
package registry
