// Package viz renders a running simulation in the terminal.
//
// [Model] is a Bubble Tea program that advances one simulator step per tick
// and shows the solver's iteration count, residual and constraint violation
// next to an ASCII graph of the residual history.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	N     - Single step while paused
//	R     - Reset to the initial velocities
//	T     - Cycle color themes
//	Q     - Quit
package viz
