package gpu

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/partlife/internal/dynamo"
)

// SoftOptions configures a SoftDevice.
type SoftOptions struct {
	// MemoryLimit caps total allocated bytes; 0 is unlimited.
	MemoryLimit int
}

type softBuffer struct {
	id        uint64
	label     string
	data      []uint32
	destroyed bool
}

func (b *softBuffer) ID() uint64      { return b.id }
func (b *softBuffer) Label() string   { return b.label }
func (b *softBuffer) Len() int        { return len(b.data) }
func (b *softBuffer) Destroyed() bool { return b.destroyed }

// SoftDevice executes kernels on CPU goroutines. Workgroups run in
// parallel; atomics use sync/atomic on the buffer words.
type SoftDevice struct {
	opts      SoftOptions
	nextID    uint64
	allocated int
	buffers   map[uint64]*softBuffer

	lost      bool
	loseAfter int
	timings   []time.Duration
}

func NewSoftDevice(opts SoftOptions) *SoftDevice {
	return &SoftDevice{
		opts:      opts,
		buffers:   make(map[uint64]*softBuffer),
		loseAfter: -1,
	}
}

func (d *SoftDevice) Name() string { return "soft" }

// Allocated returns the bytes currently held by live buffers.
func (d *SoftDevice) Allocated() int { return d.allocated }

// SetMemoryLimit changes the allocation cap. Existing buffers are kept
// even when they exceed the new limit.
func (d *SoftDevice) SetMemoryLimit(bytes int) { d.opts.MemoryLimit = bytes }

// Lose marks the device as lost. Every later call fails with
// dynamo.ErrDeviceLost until Recover.
func (d *SoftDevice) Lose() { d.lost = true }

// LoseAfter makes the next submission lose the device once n dispatches
// have executed.
func (d *SoftDevice) LoseAfter(n int) { d.loseAfter = n }

// Recover clears a simulated loss. Buffer contents are kept.
func (d *SoftDevice) Recover() {
	d.lost = false
	d.loseAfter = -1
}

func (d *SoftDevice) CreateBuffer(label string, words int) (Buffer, error) {
	if d.lost {
		return nil, dynamo.ErrDeviceLost
	}
	if words < 1 {
		words = 1
	}
	bytes := words * 4
	if d.opts.MemoryLimit > 0 && d.allocated+bytes > d.opts.MemoryLimit {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d of %d in use",
			dynamo.ErrOutOfMemory, label, bytes, d.allocated, d.opts.MemoryLimit)
	}

	d.nextID++
	b := &softBuffer{id: d.nextID, label: label, data: make([]uint32, words)}
	d.buffers[b.id] = b
	d.allocated += bytes
	return b, nil
}

func (d *SoftDevice) DestroyBuffer(b Buffer) {
	sb, ok := b.(*softBuffer)
	if !ok || sb.destroyed {
		return
	}
	sb.destroyed = true
	d.allocated -= len(sb.data) * 4
	delete(d.buffers, sb.id)
	sb.data = nil
}

func (d *SoftDevice) lookup(b Buffer) (*softBuffer, error) {
	sb, ok := b.(*softBuffer)
	if !ok {
		return nil, fmt.Errorf("gpu: buffer %T not owned by soft device", b)
	}
	if sb.destroyed {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrStaleBinding, sb.label)
	}
	return sb, nil
}

func (d *SoftDevice) WriteBuffer(b Buffer, offset int, data []uint32) error {
	if d.lost {
		return dynamo.ErrDeviceLost
	}
	sb, err := d.lookup(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > len(sb.data) {
		return fmt.Errorf("%w: write %d words at %d into %s (%d)", ErrBufferRange, len(data), offset, sb.label, len(sb.data))
	}
	copy(sb.data[offset:], data)
	return nil
}

func (d *SoftDevice) ReadBuffer(ctx context.Context, b Buffer, offset int, dst []uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.lost {
		return dynamo.ErrDeviceLost
	}
	sb, err := d.lookup(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(dst) > len(sb.data) {
		return fmt.Errorf("%w: read %d words at %d from %s (%d)", ErrBufferRange, len(dst), offset, sb.label, len(sb.data))
	}
	copy(dst, sb.data[offset:])
	return nil
}

func (d *SoftDevice) CreateBindGroup(k Kernel, entries ...Buffer) (*BindGroup, error) {
	if d.lost {
		return nil, dynamo.ErrDeviceLost
	}
	if err := checkBindGroup(k, entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, err := d.lookup(e); err != nil {
			return nil, err
		}
	}
	return &BindGroup{Kernel: k, Entries: append([]Buffer(nil), entries...)}, nil
}

// Submit validates every bind group before running anything, then
// executes dispatches in order.
func (d *SoftDevice) Submit(ctx context.Context, cmds []Dispatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.lost {
		return &SubmitError{Index: 0, Label: "submit", Err: dynamo.ErrDeviceLost}
	}

	for i, c := range cmds {
		if c.Group == nil {
			return &SubmitError{Index: i, Label: c.Label, Err: ErrBindingLayout}
		}
		for _, e := range c.Group.Entries {
			if _, err := d.lookup(e); err != nil {
				return &SubmitError{Index: i, Label: c.Label, Err: err}
			}
		}
	}

	timings := make([]time.Duration, len(cmds))
	for i, c := range cmds {
		if d.loseAfter >= 0 && i >= d.loseAfter {
			d.lost = true
			d.loseAfter = -1
			slog.Warn("soft device lost", "dispatch", i, "label", c.Label)
			return &SubmitError{Index: i, Label: c.Label, Err: dynamo.ErrDeviceLost}
		}

		start := time.Now()
		d.run(c)
		timings[i] = time.Since(start)
	}
	d.timings = timings
	return nil
}

func (d *SoftDevice) run(c Dispatch) {
	bufs := make([][]uint32, len(c.Group.Entries))
	for i, e := range c.Group.Entries {
		bufs[i] = e.(*softBuffer).data
	}
	body := softKernels[c.Group.Kernel](bufs)

	groups := c.Workgroups()
	dynamo.ParallelFor(groups, 1, func(start, end int) {
		for g := start; g < end; g++ {
			base := g * WorkgroupSize
			for i := base; i < base+WorkgroupSize; i++ {
				body(i)
			}
		}
	})
}

func (d *SoftDevice) LastTimings() []time.Duration { return d.timings }

// Release destroys every live buffer.
func (d *SoftDevice) Release() {
	for _, b := range d.buffers {
		d.DestroyBuffer(b)
	}
}
