// Package loaders turns on-disk (or generated) asset sources into
// typed resources consumed by the asset manager.
package loaders

import (
	"unsafe"

	"github.com/joedavisdev/kiln/engine/math"
)

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeScene
	ResourceTypeShaderBinary
	ResourceTypeModel
)

// Resource is the result of a loader invocation. Data is typed per
// resource: scene descriptions and shader binaries carry []byte,
// models carry []MeshData.
type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	Data     interface{}
	DataSize uint64
}

// MeshData is the CPU-side geometry of one mesh: packed vertices and
// 32-bit indices.
type MeshData struct {
	Vertices []math.Vertex3D
	Indices  []uint32
}

// VertexBytes reinterprets the vertex slice as the raw bytes a device
// buffer upload expects.
func (m *MeshData) VertexBytes() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	size := len(m.Vertices) * int(unsafe.Sizeof(math.Vertex3D{}))
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Vertices[0])), size)
}

// IndexBytes reinterprets the index slice as raw bytes.
func (m *MeshData) IndexBytes() []byte {
	if len(m.Indices) == 0 {
		return nil
	}
	size := len(m.Indices) * 4
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Indices[0])), size)
}

// VertexStride is the byte stride of one packed vertex.
func VertexStride() uint32 {
	return uint32(unsafe.Sizeof(math.Vertex3D{}))
}
