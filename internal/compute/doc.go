// Package compute provides the simulation backends behind one interface.
//
//   - cpu: the parallel reference engine (brute force or spatial hash)
//   - gpu: the compute pipeline on the software device
//   - opengl: the compute pipeline on an OpenGL 4.3 device (-tags opengl)
//
// AutoSelectBackend prefers OpenGL when a device can be created and falls
// back to the CPU:
//
//	backend := compute.AutoSelectBackend()
//	defer backend.Cleanup()
//	err := backend.Load(cfg, particles, rules, radii)
//	err = backend.Step(ctx, 1.0/60)
package compute
