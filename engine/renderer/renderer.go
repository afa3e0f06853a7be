package renderer

import "image"

// Device is the graphics capability surface the scene manager bakes
// against. Every operation is synchronous and reports failure per
// call; any device-side asynchrony (submission completion, memory
// residency) is the backend's concern.
//
// Shader identifiers passed to CreateEffect are resolved against the
// backend's shader library, loaded at backend initialization.
type Device interface {
	// CreateEffect compiles a vertex+fragment shader pair.
	CreateEffect(vertexShader, fragmentShader string) (*Effect, error)
	DestroyEffect(effect *Effect) error

	// CreateBuffer uploads raw bytes into a device buffer.
	CreateBuffer(data []byte) (*Buffer, error)
	DestroyBuffer(buffer *Buffer) error

	// CreatePipeline compiles a pipeline-state object from a compiled
	// effect and a target configuration.
	CreatePipeline(effect *Effect, target *TargetConfig) (*PipelineState, error)
	DestroyPipeline(pipeline *PipelineState) error

	CreateCommandBuffer() (*CommandBuffer, error)
	// RecordCommandBuffer records the draws, in order, against the
	// given target. Recording replaces any previous contents.
	RecordCommandBuffer(cb *CommandBuffer, target *TargetConfig, draws []DrawCall) error
	DestroyCommandBuffer(cb *CommandBuffer) error

	// Submit executes recorded command buffers in slice order and
	// waits for completion.
	Submit(cbs []*CommandBuffer) error

	// CaptureColour reads back the current colour target. Backends
	// that cannot read back (or have nothing submitted yet) return an
	// error.
	CaptureColour() (image.Image, error)

	Shutdown() error
}
