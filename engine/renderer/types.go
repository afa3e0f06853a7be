package renderer

import (
	"fmt"

	"github.com/google/uuid"
)

// PixelFormat enumerates the render-target formats understood by the
// device backends. Scene descriptions refer to these by name.
type PixelFormat int

const (
	PixelFormatInvalid PixelFormat = iota
	PixelFormatRGBA8Unorm
	PixelFormatBGRA8Unorm
	PixelFormatRGBA16Float
	PixelFormatDepth32Float
	PixelFormatDepth24UnormStencil8
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatInvalid:              "Invalid",
	PixelFormatRGBA8Unorm:           "RGBA8Unorm",
	PixelFormatBGRA8Unorm:           "BGRA8Unorm",
	PixelFormatRGBA16Float:          "RGBA16Float",
	PixelFormatDepth32Float:         "Depth32Float",
	PixelFormatDepth24UnormStencil8: "Depth24UnormStencil8",
}

func (f PixelFormat) String() string {
	if name, ok := pixelFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// IsDepthStencil reports whether the format is usable as a
// depth/stencil attachment.
func (f PixelFormat) IsDepthStencil() bool {
	return f == PixelFormatDepth32Float || f == PixelFormatDepth24UnormStencil8
}

// ParsePixelFormat resolves a format name from a scene description.
// An empty string is valid and maps to PixelFormatInvalid (no
// attachment); unknown names are errors.
func ParsePixelFormat(name string) (PixelFormat, error) {
	if name == "" {
		return PixelFormatInvalid, nil
	}
	for format, n := range pixelFormatNames {
		if n == name && format != PixelFormatInvalid {
			return format, nil
		}
	}
	return PixelFormatInvalid, fmt.Errorf("unknown pixel format %q", name)
}

// TargetConfig describes the render-target surface a pipeline or
// command buffer is built against.
type TargetConfig struct {
	SampleCount        uint32
	ColourFormats      []PixelFormat
	DepthStencilFormat PixelFormat
	Width              uint32
	Height             uint32
}

// Effect is a compiled vertex+fragment shader pair. InternalData is
// owned by the backend that compiled it.
type Effect struct {
	VertexShader   string
	FragmentShader string
	InternalData   interface{}
}

// Buffer is a device buffer created from raw bytes.
type Buffer struct {
	ID           uuid.UUID
	Size         uint64
	InternalData interface{}
}

// PipelineState is a compiled pipeline-state object binding an
// Effect's shaders to a target configuration.
type PipelineState struct {
	InternalData interface{}
}

// CommandBuffer is a device command buffer. Draws recorded into it
// execute in recording order on submission.
type CommandBuffer struct {
	ID           uuid.UUID
	InternalData interface{}
}

// DrawCall is one recorded draw: a pipeline plus the mesh buffers it
// consumes. IndexSize is the byte width of one index (2 or 4); a nil
// Index buffer means a non-indexed draw of VertexCount vertices.
type DrawCall struct {
	Pipeline      *PipelineState
	Vertex        *Buffer
	Index         *Buffer
	VertexCount   uint32
	IndexCount    uint32
	IndexSize     uint32
	InstanceCount uint32
}
