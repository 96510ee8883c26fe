// Package dynamo provides the core data model of the particle simulation.
//
// The package defines the types shared by every execution backend:
//
//   - [Particle]: position, velocity and type of one particle
//   - [Config]: simulation parameters consumed by the physics backends
//   - [InteractionMatrix] and [RadiusMatrix]: per type-pair rules
//   - [BoundaryMode]: the four world boundary policies and [WrappedDelta]
//   - [Store]: double-buffered particle storage
//
// # Example
//
//	cfg := dynamo.DefaultConfig()
//	rules := dynamo.NewInteractionMatrix(cfg.NumTypes)
//	radii := dynamo.DefaultRadiusMatrix(cfg.NumTypes)
//	if err := cfg.ValidateWith(rules, radii); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// Matrices and configs are treated as immutable during a step. A [Store]
// must only be swapped by the goroutine driving the step loop.
package dynamo
