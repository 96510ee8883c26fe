// Package gpu runs the particle step as a sequence of compute kernels on a
// [Device]: bin counting, prefix sum, counting sort, binned forces and
// integration, all recorded into one ordered submission per step.
//
// Two devices are provided. [SoftDevice] executes the kernels on CPU
// goroutines with GPU semantics (workgroups, atomics, word-granular
// buffers) and is always available. The OpenGL device, built with
// -tags opengl, runs the same kernels as GLSL compute shaders.
//
// Buffers are word arrays. Particle positions use four words per particle
// (x, y, type, tag); the tag is the upload index, carried through every
// sort so readbacks can restore upload order.
package gpu
