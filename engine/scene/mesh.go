package scene

import (
	"errors"
	"fmt"

	"github.com/joedavisdev/kiln/engine/assets/loaders"
	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/renderer"
)

// MeshState is the residency of one mesh's data. Transitions are
// strict: Unloaded→CpuOnly on construction, CpuOnly→CpuAndGpu on
// upload, CpuAndGpu→GpuOnly on local release, anything→Unloaded on
// full release. Everything else is rejected.
type MeshState int

const (
	MeshStateUnloaded MeshState = iota
	MeshStateCpuOnly
	MeshStateCpuAndGpu
	MeshStateGpuOnly
)

var meshStateNames = map[MeshState]string{
	MeshStateUnloaded:  "Unloaded",
	MeshStateCpuOnly:   "CpuOnly",
	MeshStateCpuAndGpu: "CpuAndGpu",
	MeshStateGpuOnly:   "GpuOnly",
}

func (s MeshState) String() string {
	if name, ok := meshStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MeshState(%d)", int(s))
}

// Mesh owns the CPU bytes and, after upload, the device buffers of
// one piece of geometry. GPU buffers are only ever valid after a
// successful upload; CPU data may be absent while GPU buffers remain
// valid, never the other way around.
type Mesh struct {
	state MeshState

	vertexData   []byte
	indexData    []byte
	vertexCount  uint32
	vertexStride uint32
	indexCount   uint32
	indexSize    uint32

	vertexGFX *renderer.Buffer
	indexGFX  *renderer.Buffer
}

// NewMesh wraps CPU geometry. A mesh built from empty data stays
// Unloaded and cannot be uploaded.
func NewMesh(data loaders.MeshData) *Mesh {
	mesh := &Mesh{}
	if len(data.Vertices) == 0 {
		return mesh
	}

	mesh.vertexData = data.VertexBytes()
	mesh.vertexCount = uint32(len(data.Vertices))
	mesh.vertexStride = loaders.VertexStride()
	if len(data.Indices) > 0 {
		mesh.indexData = data.IndexBytes()
		mesh.indexCount = uint32(len(data.Indices))
		mesh.indexSize = 4
	}
	mesh.state = MeshStateCpuOnly
	return mesh
}

func (m *Mesh) State() MeshState    { return m.state }
func (m *Mesh) VertexCount() uint32 { return m.vertexCount }
func (m *Mesh) IndexCount() uint32  { return m.indexCount }
func (m *Mesh) IndexSize() uint32   { return m.indexSize }

// VertexBuffer returns the device vertex buffer, nil before upload.
func (m *Mesh) VertexBuffer() *renderer.Buffer { return m.vertexGFX }

// IndexBuffer returns the device index buffer, nil before upload or
// for non-indexed meshes.
func (m *Mesh) IndexBuffer() *renderer.Buffer { return m.indexGFX }

// UploadGFX creates device buffers from the CPU data. Legal only in
// CpuOnly; uploading twice or uploading an empty mesh is rejected.
func (m *Mesh) UploadGFX(device renderer.Device) error {
	if m.state != MeshStateCpuOnly {
		err := fmt.Errorf("mesh upload requires state %s, mesh is %s", MeshStateCpuOnly, m.state)
		core.LogError(err.Error())
		return err
	}

	vertexGFX, err := device.CreateBuffer(m.vertexData)
	if err != nil {
		return &DeviceError{Kind: "vertex buffer", Name: "mesh", Err: err}
	}
	m.vertexGFX = vertexGFX

	if len(m.indexData) > 0 {
		indexGFX, err := device.CreateBuffer(m.indexData)
		if err != nil {
			device.DestroyBuffer(m.vertexGFX)
			m.vertexGFX = nil
			return &DeviceError{Kind: "index buffer", Name: "mesh", Err: err}
		}
		m.indexGFX = indexGFX
	}

	m.state = MeshStateCpuAndGpu
	return nil
}

// ReleaseLocalData drops the CPU copy. Legal only after a successful
// upload; a mesh that has not reached the GPU keeps its only copy.
func (m *Mesh) ReleaseLocalData() error {
	if m.state != MeshStateCpuAndGpu {
		err := fmt.Errorf("mesh local release requires state %s, mesh is %s", MeshStateCpuAndGpu, m.state)
		core.LogError(err.Error())
		return err
	}

	m.vertexData = nil
	m.indexData = nil
	m.state = MeshStateGpuOnly
	return nil
}

// ReleaseData tears down both copies and returns the mesh to
// Unloaded. Safe to call in any state; device buffers are destroyed
// when present.
func (m *Mesh) ReleaseData(device renderer.Device) error {
	var errs []error

	if m.vertexGFX != nil {
		if err := device.DestroyBuffer(m.vertexGFX); err != nil {
			errs = append(errs, err)
		}
		m.vertexGFX = nil
	}
	if m.indexGFX != nil {
		if err := device.DestroyBuffer(m.indexGFX); err != nil {
			errs = append(errs, err)
		}
		m.indexGFX = nil
	}

	m.vertexData = nil
	m.indexData = nil
	m.vertexCount = 0
	m.vertexStride = 0
	m.indexCount = 0
	m.indexSize = 0
	m.state = MeshStateUnloaded

	return errors.Join(errs...)
}

// Model owns an ordered slice of meshes.
type Model struct {
	Name   string
	meshes []*Mesh
}

func NewModel(name string, data []loaders.MeshData) *Model {
	model := &Model{Name: name}
	model.meshes = make([]*Mesh, 0, len(data))
	for i := range data {
		model.meshes = append(model.meshes, NewMesh(data[i]))
	}
	return model
}

func (mo *Model) Meshes() []*Mesh { return mo.meshes }
func (mo *Model) MeshCount() int  { return len(mo.meshes) }

// ReplaceMeshes releases the current meshes before adopting new data.
func (mo *Model) ReplaceMeshes(device renderer.Device, data []loaders.MeshData) error {
	var errs []error
	for _, mesh := range mo.meshes {
		if err := mesh.ReleaseData(device); err != nil {
			errs = append(errs, err)
		}
	}

	mo.meshes = make([]*Mesh, 0, len(data))
	for i := range data {
		mo.meshes = append(mo.meshes, NewMesh(data[i]))
	}
	return errors.Join(errs...)
}

// UploadGFX uploads every CPU-resident mesh. Meshes already on the
// GPU are skipped so a retried bake does not double-upload; a mesh
// with no data at all is an error.
func (mo *Model) UploadGFX(device renderer.Device) error {
	for i, mesh := range mo.meshes {
		switch mesh.State() {
		case MeshStateCpuOnly:
			if err := mesh.UploadGFX(device); err != nil {
				return fmt.Errorf("model %q mesh %d: %w", mo.Name, i, err)
			}
		case MeshStateCpuAndGpu, MeshStateGpuOnly:
			// Already resident.
		case MeshStateUnloaded:
			err := fmt.Errorf("model %q mesh %d has no data to upload", mo.Name, i)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

// ReleaseLocalData drops CPU copies of every uploaded mesh.
func (mo *Model) ReleaseLocalData() error {
	for i, mesh := range mo.meshes {
		if mesh.State() != MeshStateCpuAndGpu {
			continue
		}
		if err := mesh.ReleaseLocalData(); err != nil {
			return fmt.Errorf("model %q mesh %d: %w", mo.Name, i, err)
		}
	}
	return nil
}

// ReleaseData fully releases every mesh.
func (mo *Model) ReleaseData(device renderer.Device) error {
	var errs []error
	for _, mesh := range mo.meshes {
		if err := mesh.ReleaseData(device); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
