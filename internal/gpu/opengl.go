//go:build opengl

package gpu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/gl/v4.3-core/gl"

	"github.com/san-kum/partlife/internal/dynamo"
)

type glBuffer struct {
	name      uint32
	label     string
	words     int
	destroyed bool
}

func (b *glBuffer) ID() uint64      { return uint64(b.name) }
func (b *glBuffer) Label() string   { return b.label }
func (b *glBuffer) Len() int        { return b.words }
func (b *glBuffer) Destroyed() bool { return b.destroyed }

// OpenGLDevice runs the kernels as GLSL compute shaders. The caller must
// make an OpenGL 4.3 context current on the calling goroutine before
// NewOpenGLDevice and keep using the device from that goroutine.
type OpenGLDevice struct {
	programs [numKernels]uint32
	buffers  map[uint32]*glBuffer
	profile  bool
	timings  []time.Duration
}

// NewOpenGLDevice loads the GL entry points and compiles every kernel.
// With profile set, each dispatch waits for completion so per-dispatch
// timings are exact.
func NewOpenGLDevice(profile bool) (Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("%w: opengl init: %v", dynamo.ErrUnavailable, err)
	}
	if gl.GetString(gl.VERSION) == nil {
		return nil, fmt.Errorf("%w: no current opengl context", dynamo.ErrUnavailable)
	}

	d := &OpenGLDevice{buffers: make(map[uint32]*glBuffer), profile: profile}
	for k := Kernel(0); k < numKernels; k++ {
		prog, err := createComputeProgram(glslSources[k])
		if err != nil {
			d.Release()
			return nil, fmt.Errorf("kernel %s: %w", k, err)
		}
		d.programs[k] = prog
	}
	return d, nil
}

// OpenGLAvailable reports whether this build includes the OpenGL device.
func OpenGLAvailable() bool { return true }

func (d *OpenGLDevice) Name() string { return "opengl" }

func (d *OpenGLDevice) CreateBuffer(label string, words int) (Buffer, error) {
	if words < 1 {
		words = 1
	}
	var name uint32
	gl.GenBuffers(1, &name)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, name)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, words*4, nil, gl.DYNAMIC_COPY)
	if err := glError(); err != nil {
		gl.DeleteBuffers(1, &name)
		return nil, fmt.Errorf("create %s: %w", label, err)
	}

	zero := make([]uint32, words)
	gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, 0, words*4, gl.Ptr(zero))

	b := &glBuffer{name: name, label: label, words: words}
	d.buffers[name] = b
	return b, nil
}

func (d *OpenGLDevice) DestroyBuffer(b Buffer) {
	gb, ok := b.(*glBuffer)
	if !ok || gb.destroyed {
		return
	}
	gl.DeleteBuffers(1, &gb.name)
	gb.destroyed = true
	delete(d.buffers, gb.name)
}

func (d *OpenGLDevice) lookup(b Buffer) (*glBuffer, error) {
	gb, ok := b.(*glBuffer)
	if !ok {
		return nil, fmt.Errorf("gpu: buffer %T not owned by opengl device", b)
	}
	if gb.destroyed {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrStaleBinding, gb.label)
	}
	return gb, nil
}

func (d *OpenGLDevice) WriteBuffer(b Buffer, offset int, data []uint32) error {
	gb, err := d.lookup(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > gb.words {
		return fmt.Errorf("%w: write %d words at %d into %s", ErrBufferRange, len(data), offset, gb.label)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, gb.name)
	gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, offset*4, len(data)*4, gl.Ptr(data))
	return glError()
}

func (d *OpenGLDevice) ReadBuffer(ctx context.Context, b Buffer, offset int, dst []uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gb, err := d.lookup(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(dst) > gb.words {
		return fmt.Errorf("%w: read %d words at %d from %s", ErrBufferRange, len(dst), offset, gb.label)
	}
	if len(dst) == 0 {
		return nil
	}
	gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, gb.name)
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, offset*4, len(dst)*4, gl.Ptr(dst))
	return glError()
}

func (d *OpenGLDevice) CreateBindGroup(k Kernel, entries ...Buffer) (*BindGroup, error) {
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

func (d *OpenGLDevice) Submit(ctx context.Context, cmds []Dispatch) error {
	if err := ctx.Err(); err != nil {
		return err
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
	start := time.Now()
	for i, c := range cmds {
		gl.UseProgram(d.programs[c.Group.Kernel])
		for slot, e := range c.Group.Entries {
			gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, uint32(slot), e.(*glBuffer).name)
		}
		if groups := c.Workgroups(); groups > 0 {
			gl.DispatchCompute(uint32(groups), 1, 1)
		}
		gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)

		if d.profile {
			gl.Finish()
			now := time.Now()
			timings[i] = now.Sub(start)
			start = now
		}
		if err := glError(); err != nil {
			return &SubmitError{Index: i, Label: c.Label, Err: err}
		}
	}
	d.timings = timings
	return nil
}

func (d *OpenGLDevice) LastTimings() []time.Duration { return d.timings }

func (d *OpenGLDevice) Release() {
	for _, b := range d.buffers {
		d.DestroyBuffer(b)
	}
	for k, prog := range d.programs {
		if prog != 0 {
			gl.DeleteProgram(prog)
			d.programs[k] = 0
		}
	}
}

func glError() error {
	switch code := gl.GetError(); code {
	case gl.NO_ERROR:
		return nil
	case gl.OUT_OF_MEMORY:
		return dynamo.ErrOutOfMemory
	default:
		return fmt.Errorf("gpu: opengl error 0x%x", code)
	}
}

func createComputeProgram(source string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("failed to compile compute shader: %v", log)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, shader)
	gl.LinkProgram(program)
	gl.DeleteShader(shader)

	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("failed to link compute program")
	}
	return program, nil
}
