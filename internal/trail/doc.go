// Package trail implements the chain cursor animator: a short chain of
// points that elastically follows a pointer, rendered every display frame as
// one rotated, horizontally scaled segment per link.
//
// Layout:
//
//	point.go     Point and vector helpers
//	params.go    tuning constants, follow modes, validation
//	animator.go  owned chain state, pointer snap, per-frame step
//	segment.go   segment derivation and CSS-style transforms
//	style.go     theme-dependent opacity and glow
//	targets.go   render handle capability and slot set
//	scheduler.go "run before next repaint" primitives
//	pointer.go   pointer subscription fan-out
//	loop.go      single frame loop binding all of the above
//	spring.go    harmonica-driven follow mode
//
// An Animator is plain state and is not safe for concurrent use. Callers
// either drive it from one goroutine (the bubbletea Update loop does this) or
// hand it to a Loop, which serialises pointer events and frame callbacks.
//
// Pointer coordinates are assumed to be finite numbers; NaN or Inf input is
// not guarded and propagates into the chain.
package trail
