// Package engine runs skill bodies on a bounded worker pool.
//
// Every submission becomes a SkillExecution that starts PENDING and moves to
// exactly one terminal status. Terminal transitions are decided by a
// compare-and-swap on the task's state word, so a worker finishing its body,
// a caller whose wait expired and a Cancel call can race safely: the first one
// wins and the others are discarded. Finished records stay readable through
// Status for a bounded retention window.
package engine
