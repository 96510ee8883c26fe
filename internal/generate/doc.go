// Package generate builds initial particle layouts, interaction rules and
// radius matrices.
//
// Every generator draws from the *rand.Rand it is given, so a seed fully
// determines the result.
package generate
