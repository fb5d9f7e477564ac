// Package timer is the timer engine: the Store of active timer records, the
// Engine that moves tasks between planned, active, paused and completed, and
// the Reconciler that accrues running time, refreshes progress cards and
// completes timers whose plan is used up.
//
// A task is active exactly while the Store holds its record. The
// repository's spent_seconds is only written when a running segment ends
// (pause, complete, extend, or the reconciler's completion).
package timer
