// Package analysis inspects running particle systems.
//
//   - [ComputeBinStats]: occupancy statistics of the spatial grid
//   - [Tuner]: adaptive cell size driven by bin occupancy
//   - [PowerSpectrum], [DominantPeriod]: oscillation in a sampled series
//   - [LyapunovExponent]: divergence of two nearby runs
//   - [BifurcationDiagram]: long-run kinetic energy across a parameter sweep
//
// # Cell size tuning
//
// Crowded bins make the force pass quadratic in bin size, sparse bins
// waste scan work on empty cells:
//
//	tuner := analysis.NewTuner(cfg.MaxBinDensity)
//	if cell, changed := tuner.Adjust(cfg.CellSize, radii.MaxInteractionRadius(), counts); changed {
//	    cfg.CellSize = cell
//	}
package analysis
