// Package host owns the lifecycle of a graph run.
//
// A Host validates its graph once, builds a Scheduler, and runs it on a
// dedicated goroutine. The Controller and DebugController live as long as
// the Host and are shared by every Scheduler it builds, so run mode and
// breakpoints survive restarts. Schedulers themselves are single use and
// are rebuilt whenever the start node changes or a finished run is started
// again.
//
// Changing the start node while a run is in flight is a two-phase
// protocol: TrySetStartNode returns RequireRestartConfirm and the change
// only takes effect on ConfirmPendingStartNodeAndRestart.
//
// Host-level trace subscribers are attached to a relay Emitter that every
// Scheduler generation forwards into, so a subscription made once sees
// events from all restarts.
package host
