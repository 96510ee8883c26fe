//go:build opengl

package gpu

const glslHeader = `#version 430
layout(local_size_x = 256) in;
`

const glslBins = `
int cell_coord(float v, float cell, int dim) {
	return clamp(int(floor(v / cell)), 0, dim - 1);
}

uint bin_of(float x, float y, float cell, uint w, uint h) {
	int cx = cell_coord(x, cell, int(w));
	int cy = cell_coord(y, cell, int(h));
	return uint(cy) * w + uint(cx);
}
`

var glslSources = [numKernels]string{
	KernelClear: glslHeader + `
layout(std430, binding = 0) buffer Bins { uint bins[]; };
layout(std430, binding = 1) readonly buffer Spatial { uint sp[]; };

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= sp[3] + 1u) return;
	bins[i] = 0u;
}
`,

	KernelCount: glslHeader + glslBins + `
layout(std430, binding = 0) readonly buffer Pos { uint pos[]; };
layout(std430, binding = 1) buffer Bins { uint bins[]; };
layout(std430, binding = 2) readonly buffer Spatial { uint sp[]; };

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= sp[4]) return;
	float x = uintBitsToFloat(pos[i * 4u]);
	float y = uintBitsToFloat(pos[i * 4u + 1u]);
	uint b = bin_of(x, y, uintBitsToFloat(sp[0]), sp[1], sp[2]);
	atomicAdd(bins[b + 1u], 1u);
}
`,

	KernelPrefix: glslHeader + `
layout(std430, binding = 0) readonly buffer Src { uint src[]; };
layout(std430, binding = 1) writeonly buffer Dst { uint dst[]; };
layout(std430, binding = 2) readonly buffer Spatial { uint sp[]; };
layout(std430, binding = 3) readonly buffer Step { uint step[]; };

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= sp[3] + 1u) return;
	uint v = src[i];
	if (i >= step[0]) v += src[i - step[0]];
	dst[i] = v;
}
`,

	KernelSort: glslHeader + glslBins + `
layout(std430, binding = 0) readonly buffer PosIn { uint pos_in[]; };
layout(std430, binding = 1) readonly buffer VelIn { uint vel_in[]; };
layout(std430, binding = 2) readonly buffer Offsets { uint offsets[]; };
layout(std430, binding = 3) buffer Slots { uint slots[]; };
layout(std430, binding = 4) writeonly buffer PosOut { uint pos_out[]; };
layout(std430, binding = 5) writeonly buffer VelOut { uint vel_out[]; };
layout(std430, binding = 6) readonly buffer Spatial { uint sp[]; };

void main() {
	uint i = gl_GlobalInvocationID.x;
	uint n = sp[4];
	if (i >= n) return;
	float x = uintBitsToFloat(pos_in[i * 4u]);
	float y = uintBitsToFloat(pos_in[i * 4u + 1u]);
	uint b = bin_of(x, y, uintBitsToFloat(sp[0]), sp[1], sp[2]);
	uint d = offsets[b] + atomicAdd(slots[b], 1u);

	for (uint k = 0u; k < 4u; k++) pos_out[d * 4u + k] = pos_in[i * 4u + k];
	uint vw = uint(vel_in.length()) / n;
	for (uint k = 0u; k < vw; k++) vel_out[d * vw + k] = vel_in[i * vw + k];
}
`,

	KernelForces: glslHeader + glslBins + glslSim + `
layout(std430, binding = 0) readonly buffer Pos { uint pos[]; };
layout(std430, binding = 1) buffer Vel { uint vel[]; };
layout(std430, binding = 2) readonly buffer Offsets { uint offsets[]; };
layout(std430, binding = 3) readonly buffer Interaction { float interaction[]; };
layout(std430, binding = 4) readonly buffer MinR { float min_r[]; };
layout(std430, binding = 5) readonly buffer MaxR { float max_r[]; };
layout(std430, binding = 6) readonly buffer Sim { uint sim[]; };
layout(std430, binding = 7) readonly buffer Spatial { uint sp[]; };
layout(std430, binding = 8) buffer Stats { uint stats[]; };

` + glslVel + `

int push_distinct(inout int cells[4], int n, int v) {
	for (int k = 0; k < n; k++) {
		if (cells[k] == v) return n;
	}
	cells[n] = v;
	return n + 1;
}

int axis_cells(int c, int dim, bool wrap, bool partial, inout int cells[4]) {
	int n = 0;
	for (int d = -1; d <= 1; d++) {
		int v = c + d;
		if (wrap) v = ((v % dim) + dim) % dim;
		else if (v < 0 || v >= dim) continue;
		n = push_distinct(cells, n, v);
	}
	if (wrap && partial) {
		if (c == 0) n = push_distinct(cells, n, ((dim - 2) % dim + dim) % dim);
		if (c == dim - 2) n = push_distinct(cells, n, 0);
	}
	return n;
}

void main() {
	uint i = gl_GlobalInvocationID.x;
	uint n = sim[0];
	if (i >= n) return;

	uint types = sim[1];
	float world_w = uintBitsToFloat(sim[6]);
	float world_h = uintBitsToFloat(sim[7]);
	bool wrap = sim[8] != 0u;
	float repel = uintBitsToFloat(sim[4]);
	uint budget = sim[13];

	float cell = uintBitsToFloat(sp[0]);
	int gw = int(sp[1]);
	int gh = int(sp[2]);

	vec2 p = vec2(uintBitsToFloat(pos[i * 4u]), uintBitsToFloat(pos[i * 4u + 1u]));
	uint ti = pos[i * 4u + 2u];
	int cx = cell_coord(p.x, cell, gw);
	int cy = cell_coord(p.y, cell, gh);

	vec2 total = vec2(0.0);
	uint examined = 0u;
	bool truncated = false;
	int xs[4];
	int ys[4];
	int nx = axis_cells(cx, gw, wrap, float(gw) * cell > world_w, xs);
	int ny = axis_cells(cy, gh, wrap, float(gh) * cell > world_h, ys);

	for (int a = 0; a < ny && !truncated; a++) {
		for (int b = 0; b < nx && !truncated; b++) {
			uint bin = uint(ys[a] * gw + xs[b]);
			for (uint j = offsets[bin]; j < offsets[bin + 1u]; j++) {
				if (j == i) continue;
				if (budget > 0u && examined == budget) {
					atomicAdd(stats[0], 1u);
					truncated = true;
					break;
				}
				examined++;
				vec2 q = vec2(uintBitsToFloat(pos[j * 4u]), uintBitsToFloat(pos[j * 4u + 1u]));
				uint k = ti * types + pos[j * 4u + 2u];
				vec2 delta = wrapped_delta(p, q, vec2(world_w, world_h), wrap);
				total += pair_force(delta, min_r[k], max_r[k], interaction[k], repel);
			}
		}
	}

	uint own = uint(cy * gw + cx);
	float count = float(offsets[own + 1u] - offsets[own]);
	float cap = uintBitsToFloat(sim[12]);
	if (cap > 0.0 && count > cap) total *= cap / count;
	total /= uintBitsToFloat(sim[2]);

	float friction = uintBitsToFloat(sim[3]);
	float dt = uintBitsToFloat(sim[11]);
	vec2 v = load_vel(i, sim[14]) * (1.0 - friction) + total * dt;
	store_vel(i, v, sim[14]);
}
`,

	KernelAdvance: glslHeader + glslSim + `
layout(std430, binding = 0) buffer Pos { uint pos[]; };
layout(std430, binding = 1) buffer Vel { uint vel[]; };
layout(std430, binding = 2) readonly buffer Sim { uint sim[]; };

` + glslVel + `

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= sim[0]) return;

	vec2 v = load_vel(i, sim[14]);
	float max_v = uintBitsToFloat(sim[5]);
	float speed_sq = dot(v, v);
	if (speed_sq > max_v * max_v) v *= max_v / sqrt(speed_sq);

	float dt = uintBitsToFloat(sim[11]);
	vec2 p = vec2(uintBitsToFloat(pos[i * 4u]), uintBitsToFloat(pos[i * 4u + 1u])) + v * dt;
	vec2 world = vec2(uintBitsToFloat(sim[6]), uintBitsToFloat(sim[7]));

	if (sim[8] == 0u) {
		float margin = uintBitsToFloat(sim[10]) * 2.0;
		if (p.x < margin) { p.x = margin; v.x = abs(v.x) * 0.5; }
		if (p.x > world.x - margin) { p.x = world.x - margin; v.x = -abs(v.x) * 0.5; }
		if (p.y < margin) { p.y = margin; v.y = abs(v.y) * 0.5; }
		if (p.y > world.y - margin) { p.y = world.y - margin; v.y = -abs(v.y) * 0.5; }
	} else {
		p = rem_euclid(p, world);
	}

	pos[i * 4u] = floatBitsToUint(p.x);
	pos[i * 4u + 1u] = floatBitsToUint(p.y);
	store_vel(i, v, sim[14]);
}
`,
}

const glslSim = `
vec2 wrapped_delta(vec2 from, vec2 to, vec2 world, bool wrap) {
	vec2 d = to - from;
	if (!wrap) return d;
	if (d.x > world.x * 0.5) d.x -= world.x; else if (d.x < -world.x * 0.5) d.x += world.x;
	if (d.y > world.y * 0.5) d.y -= world.y; else if (d.y < -world.y * 0.5) d.y += world.y;
	return d;
}

vec2 pair_force(vec2 delta, float min_r, float max_r, float strength, float repel) {
	float dist_sq = dot(delta, delta);
	if (dist_sq > max_r * max_r) return vec2(0.0);
	float dist = sqrt(dist_sq);
	if (dist < 1e-4) return vec2(0.0);
	vec2 dir = delta / dist;
	if (dist < min_r) return -dir * repel * (min_r - dist) / min_r;
	float span = max_r - min_r;
	if (span < 1e-4) return vec2(0.0);
	return dir * strength * (1.0 - (dist - min_r) / span);
}

vec2 rem_euclid(vec2 a, vec2 b) {
	vec2 r = a - b * floor(a / b);
	if (r.x >= b.x) r.x = 0.0;
	if (r.y >= b.y) r.y = 0.0;
	return r;
}
`

const glslVel = `
vec2 load_vel(uint i, uint flags) {
	if ((flags & 1u) != 0u) return unpackHalf2x16(vel[i]);
	return vec2(uintBitsToFloat(vel[i * 2u]), uintBitsToFloat(vel[i * 2u + 1u]));
}

void store_vel(uint i, vec2 v, uint flags) {
	if ((flags & 1u) != 0u) {
		vel[i] = packHalf2x16(v);
		return;
	}
	vel[i * 2u] = floatBitsToUint(v.x);
	vel[i * 2u + 1u] = floatBitsToUint(v.y);
}
`
