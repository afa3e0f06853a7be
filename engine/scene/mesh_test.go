package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joedavisdev/kiln/engine/assets/loaders"
	"github.com/joedavisdev/kiln/engine/math"
	"github.com/joedavisdev/kiln/engine/renderer/software"
)

func testMeshData(vertexCount, indexCount int) loaders.MeshData {
	data := loaders.MeshData{}
	for i := 0; i < vertexCount; i++ {
		data.Vertices = append(data.Vertices, math.Vertex3D{
			Position: math.Vec3{X: float32(i), Y: 0, Z: 0},
		})
	}
	for i := 0; i < indexCount; i++ {
		data.Indices = append(data.Indices, uint32(i%vertexCount))
	}
	return data
}

func newTestDevice(t *testing.T) *software.Device {
	t.Helper()
	device, err := software.NewDevice(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = device.Shutdown() })
	return device
}

func TestMeshLifecycle(t *testing.T) {
	device := newTestDevice(t)

	mesh := NewMesh(testMeshData(3, 3))
	require.Equal(t, MeshStateCpuOnly, mesh.State())
	assert.Equal(t, uint32(3), mesh.VertexCount())
	assert.Equal(t, uint32(3), mesh.IndexCount())
	assert.Equal(t, uint32(4), mesh.IndexSize())
	assert.Nil(t, mesh.VertexBuffer())

	require.NoError(t, mesh.UploadGFX(device))
	assert.Equal(t, MeshStateCpuAndGpu, mesh.State())
	assert.NotNil(t, mesh.VertexBuffer())
	assert.NotNil(t, mesh.IndexBuffer())
	assert.Equal(t, 2, device.Stats().Buffers)

	require.NoError(t, mesh.ReleaseLocalData())
	assert.Equal(t, MeshStateGpuOnly, mesh.State())
	assert.NotNil(t, mesh.VertexBuffer())

	require.NoError(t, mesh.ReleaseData(device))
	assert.Equal(t, MeshStateUnloaded, mesh.State())
	assert.Nil(t, mesh.VertexBuffer())
	assert.Nil(t, mesh.IndexBuffer())
	assert.Equal(t, 0, device.Stats().Buffers)
}

func TestMeshRejectsInvalidTransitions(t *testing.T) {
	device := newTestDevice(t)

	t.Run("upload twice", func(t *testing.T) {
		mesh := NewMesh(testMeshData(3, 0))
		require.NoError(t, mesh.UploadGFX(device))
		err := mesh.UploadGFX(device)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CpuAndGpu")
	})

	t.Run("upload empty mesh", func(t *testing.T) {
		mesh := NewMesh(loaders.MeshData{})
		require.Equal(t, MeshStateUnloaded, mesh.State())
		require.Error(t, mesh.UploadGFX(device))
	})

	t.Run("release local before upload", func(t *testing.T) {
		mesh := NewMesh(testMeshData(3, 3))
		err := mesh.ReleaseLocalData()
		require.Error(t, err)
		assert.Equal(t, MeshStateCpuOnly, mesh.State())
	})

	t.Run("release local twice", func(t *testing.T) {
		mesh := NewMesh(testMeshData(3, 3))
		require.NoError(t, mesh.UploadGFX(device))
		require.NoError(t, mesh.ReleaseLocalData())
		require.Error(t, mesh.ReleaseLocalData())
	})

	t.Run("release data is legal anywhere", func(t *testing.T) {
		mesh := NewMesh(testMeshData(3, 3))
		require.NoError(t, mesh.ReleaseData(device))
		require.NoError(t, mesh.ReleaseData(device))
	})
}

func TestMeshNonIndexedUpload(t *testing.T) {
	device := newTestDevice(t)

	mesh := NewMesh(testMeshData(3, 0))
	require.NoError(t, mesh.UploadGFX(device))
	assert.NotNil(t, mesh.VertexBuffer())
	assert.Nil(t, mesh.IndexBuffer())
	assert.Equal(t, 1, device.Stats().Buffers)
}

func TestModelUploadSkipsResidentMeshes(t *testing.T) {
	device := newTestDevice(t)

	model := NewModel("pair", []loaders.MeshData{testMeshData(3, 3), testMeshData(4, 6)})
	require.Equal(t, 2, model.MeshCount())

	require.NoError(t, model.UploadGFX(device))
	assert.Equal(t, 4, device.Stats().Buffers)

	// A second pass must not double-upload.
	require.NoError(t, model.UploadGFX(device))
	assert.Equal(t, 4, device.Stats().Buffers)

	require.NoError(t, model.ReleaseLocalData())
	for _, mesh := range model.Meshes() {
		assert.Equal(t, MeshStateGpuOnly, mesh.State())
	}

	require.NoError(t, model.ReleaseData(device))
	assert.Equal(t, 0, device.Stats().Buffers)
}

func TestModelReplaceMeshesReleasesPrevious(t *testing.T) {
	device := newTestDevice(t)

	model := NewModel("reloadable", []loaders.MeshData{testMeshData(3, 3)})
	require.NoError(t, model.UploadGFX(device))
	require.Equal(t, 2, device.Stats().Buffers)

	require.NoError(t, model.ReplaceMeshes(device, []loaders.MeshData{testMeshData(4, 6), testMeshData(3, 0)}))
	assert.Equal(t, 0, device.Stats().Buffers, "previous device buffers must be released")
	assert.Equal(t, 2, model.MeshCount())
	for _, mesh := range model.Meshes() {
		assert.Equal(t, MeshStateCpuOnly, mesh.State())
	}

	require.NoError(t, model.UploadGFX(device))
	assert.Equal(t, 3, device.Stats().Buffers)
	require.NoError(t, model.ReleaseData(device))
}
