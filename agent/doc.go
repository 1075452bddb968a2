// Package agent implements the single-agent runtime: a lifecycle state
// machine (initializing -> ready -> busy -> paused -> shutting_down ->
// stopped, with an error branch), a capability-indexed message dispatcher,
// per-agent lifecycle hooks and an in-process event bus.
//
// Handler failures never escape the runtime boundary: errors, panics and
// deadline expiry all surface as failed types.Response values with stable
// error codes.
package agent
