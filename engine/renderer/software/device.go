// Package software provides a pure-CPU implementation of the renderer
// Device interface. It performs no real rasterization; it validates
// arguments, tracks object lifetimes, and keeps a colour target that
// captures can read back. It backs tests and machines without Vulkan.
package software

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/google/uuid"

	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/renderer"
)

var (
	ErrDeviceClosed = errors.New("software: device closed")
	ErrNilObject    = errors.New("software: nil device object")
)

type Config struct {
	Width  uint32
	Height uint32
	// ShaderLibrary maps shader identifiers to their (opaque) code.
	// When nil, any non-empty identifier compiles.
	ShaderLibrary map[string][]byte
}

// Stats counts live objects and submissions, for tests and logging.
type Stats struct {
	Effects        int
	Buffers        int
	Pipelines      int
	CommandBuffers int
	Submissions    int
	SubmittedDraws int
}

type effectData struct {
	vertex   string
	fragment string
}

type bufferData struct {
	bytes []byte
}

type pipelineData struct {
	effect *renderer.Effect
	target renderer.TargetConfig
}

type commandBufferData struct {
	draws    []renderer.DrawCall
	recorded bool
}

type Device struct {
	mu      sync.Mutex
	config  Config
	target  *image.RGBA
	stats   Stats
	closed  bool
	effects map[*renderer.Effect]struct{}
}

func NewDevice(config *Config) (*Device, error) {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	if cfg.Width == 0 {
		cfg.Width = 1280
	}
	if cfg.Height == 0 {
		cfg.Height = 720
	}
	d := &Device{
		config:  cfg,
		target:  image.NewRGBA(image.Rect(0, 0, int(cfg.Width), int(cfg.Height))),
		effects: make(map[*renderer.Effect]struct{}),
	}
	d.clearTarget(color.RGBA{R: 24, G: 24, B: 32, A: 255})
	core.LogInfo("software renderer device initialized (%dx%d)", cfg.Width, cfg.Height)
	return d, nil
}

func (d *Device) clearTarget(c color.RGBA) {
	bounds := d.target.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			d.target.SetRGBA(x, y, c)
		}
	}
}

func (d *Device) CreateEffect(vertexShader, fragmentShader string) (*renderer.Effect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if vertexShader == "" || fragmentShader == "" {
		return nil, fmt.Errorf("software: effect requires both shader names (vertex=%q fragment=%q)", vertexShader, fragmentShader)
	}
	if d.config.ShaderLibrary != nil {
		if _, ok := d.config.ShaderLibrary[vertexShader]; !ok {
			return nil, fmt.Errorf("software: vertex shader %q not in library", vertexShader)
		}
		if _, ok := d.config.ShaderLibrary[fragmentShader]; !ok {
			return nil, fmt.Errorf("software: fragment shader %q not in library", fragmentShader)
		}
	}
	effect := &renderer.Effect{
		VertexShader:   vertexShader,
		FragmentShader: fragmentShader,
		InternalData:   &effectData{vertex: vertexShader, fragment: fragmentShader},
	}
	d.effects[effect] = struct{}{}
	d.stats.Effects++
	return effect, nil
}

func (d *Device) DestroyEffect(effect *renderer.Effect) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if effect == nil || effect.InternalData == nil {
		return ErrNilObject
	}
	delete(d.effects, effect)
	effect.InternalData = nil
	d.stats.Effects--
	return nil
}

func (d *Device) CreateBuffer(data []byte) (*renderer.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("software: cannot create an empty buffer")
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	d.stats.Buffers++
	return &renderer.Buffer{
		ID:           core.IdentifierAcquireNewID(d),
		Size:         uint64(len(stored)),
		InternalData: &bufferData{bytes: stored},
	}, nil
}

func (d *Device) DestroyBuffer(buffer *renderer.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buffer == nil || buffer.InternalData == nil {
		return ErrNilObject
	}
	if buffer.ID != uuid.Nil {
		core.IdentifierReleaseID(buffer.ID)
	}
	buffer.InternalData = nil
	d.stats.Buffers--
	return nil
}

func (d *Device) CreatePipeline(effect *renderer.Effect, target *renderer.TargetConfig) (*renderer.PipelineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	if effect == nil || effect.InternalData == nil {
		return nil, fmt.Errorf("software: pipeline requires a compiled effect")
	}
	if target == nil || (len(target.ColourFormats) == 0 && target.DepthStencilFormat == renderer.PixelFormatInvalid) {
		return nil, fmt.Errorf("software: pipeline target needs at least one attachment")
	}
	for _, f := range target.ColourFormats {
		if f.IsDepthStencil() || f == renderer.PixelFormatInvalid {
			return nil, fmt.Errorf("software: %s is not a colour format", f)
		}
	}
	d.stats.Pipelines++
	return &renderer.PipelineState{
		InternalData: &pipelineData{effect: effect, target: *target},
	}, nil
}

func (d *Device) DestroyPipeline(pipeline *renderer.PipelineState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pipeline == nil || pipeline.InternalData == nil {
		return ErrNilObject
	}
	pipeline.InternalData = nil
	d.stats.Pipelines--
	return nil
}

func (d *Device) CreateCommandBuffer() (*renderer.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	d.stats.CommandBuffers++
	return &renderer.CommandBuffer{
		ID:           core.IdentifierAcquireNewID(d),
		InternalData: &commandBufferData{},
	}, nil
}

func (d *Device) RecordCommandBuffer(cb *renderer.CommandBuffer, target *renderer.TargetConfig, draws []renderer.DrawCall) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	data, err := commandBufferInternal(cb)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("software: recording requires a target configuration")
	}
	for i, draw := range draws {
		if draw.Pipeline == nil || draw.Pipeline.InternalData == nil {
			return fmt.Errorf("software: draw %d has no compiled pipeline", i)
		}
		if draw.Vertex == nil || draw.Vertex.InternalData == nil {
			return fmt.Errorf("software: draw %d has no vertex buffer", i)
		}
		if draw.Index != nil && draw.IndexSize != 2 && draw.IndexSize != 4 {
			return fmt.Errorf("software: draw %d has unsupported index size %d", i, draw.IndexSize)
		}
	}
	data.draws = append(data.draws[:0], draws...)
	data.recorded = true
	return nil
}

func (d *Device) DestroyCommandBuffer(cb *renderer.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb == nil || cb.InternalData == nil {
		return ErrNilObject
	}
	if cb.ID != uuid.Nil {
		core.IdentifierReleaseID(cb.ID)
	}
	cb.InternalData = nil
	d.stats.CommandBuffers--
	return nil
}

func (d *Device) Submit(cbs []*renderer.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	total := 0
	for i, cb := range cbs {
		data, err := commandBufferInternal(cb)
		if err != nil {
			return fmt.Errorf("software: submit entry %d: %w", i, err)
		}
		if !data.recorded {
			return fmt.Errorf("software: submit entry %d was never recorded", i)
		}
		total += len(data.draws)
	}
	d.stats.Submissions++
	d.stats.SubmittedDraws += total

	// The colour target gets a shade derived from the submitted draw
	// count so captures show that work reached the device.
	shade := uint8(40 + 12*(total%16))
	d.clearTarget(color.RGBA{R: shade, G: shade, B: uint8(64 + total%128), A: 255})
	return nil
}

func (d *Device) CaptureColour() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceClosed
	}
	snapshot := image.NewRGBA(d.target.Bounds())
	copy(snapshot.Pix, d.target.Pix)
	return snapshot, nil
}

func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.closed = true
	core.LogInfo("software renderer device shut down (%d submissions, %d draws)", d.stats.Submissions, d.stats.SubmittedDraws)
	return nil
}

// Stats returns a snapshot of live-object and submission counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// RecordedDraws returns the draws currently recorded into cb.
func (d *Device) RecordedDraws(cb *renderer.CommandBuffer) ([]renderer.DrawCall, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, err := commandBufferInternal(cb)
	if err != nil {
		return nil, err
	}
	out := make([]renderer.DrawCall, len(data.draws))
	copy(out, data.draws)
	return out, nil
}

func commandBufferInternal(cb *renderer.CommandBuffer) (*commandBufferData, error) {
	if cb == nil || cb.InternalData == nil {
		return nil, ErrNilObject
	}
	data, ok := cb.InternalData.(*commandBufferData)
	if !ok {
		return nil, fmt.Errorf("software: command buffer belongs to another backend")
	}
	return data, nil
}
