// Package physics is the CPU reference implementation of the particle
// step: pairwise force evaluation (brute force or spatial hash) followed
// by integration, both parallel over particles.
//
// Every force evaluator in the module, including the GPU kernels, uses
// [PairForce] so that backends agree up to accumulation order.
//
//	engine := physics.NewEngine()
//	store := dynamo.NewStore(particles)
//	err := engine.Step(store, rules, radii, cfg, 1.0/60)
package physics
