// Package viz renders particle simulations in the terminal.
//
// [Model] is a Bubble Tea model that steps a [sim.Runner] on a timer and
// draws the particles on a braille [Canvas], one colour per particle type.
// [App] wraps it with a preset picker.
//
// # Key Bindings
//
//	Space  - pause / resume
//	N      - single step while paused
//	R      - rebuild the scenario from its seed
//	Tab    - select a parameter, Up/Down to scale it
//	Click  - brush at the cursor (B toggles add/remove, [ ] pick type)
//	T      - cycle colour themes
//	G      - toggle GIF recording
//	?      - help
package viz
