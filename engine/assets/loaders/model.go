package loaders

import (
	"fmt"

	"github.com/joedavisdev/kiln/engine/core"
	"github.com/joedavisdev/kiln/engine/math"
)

// ModelLoader produces the built-in procedural primitives. Scene
// descriptions reference models by these names; external model file
// formats are out of scope.
type ModelLoader struct{}

func (l *ModelLoader) Load(name string) (*Resource, error) {
	var meshes []MeshData

	switch name {
	case "triangle":
		meshes = []MeshData{generateTriangle()}
	case "quad":
		meshes = []MeshData{generateQuad()}
	case "cube":
		meshes = []MeshData{generateCube()}
	case "gizmo":
		// Two meshes so multi-mesh model handling stays exercised.
		meshes = []MeshData{generateQuad(), generateTriangle()}
	default:
		err := fmt.Errorf("unknown model %q (built-ins: triangle, quad, cube, gizmo)", name)
		core.LogError(err.Error())
		return nil, err
	}

	var size uint64
	for i := range meshes {
		size += uint64(len(meshes[i].VertexBytes()) + len(meshes[i].IndexBytes()))
	}

	return &Resource{
		Name:     name,
		Type:     ResourceTypeModel,
		Data:     meshes,
		DataSize: size,
	}, nil
}

func (l *ModelLoader) Unload(resource *Resource) error {
	resource.Data = nil
	resource.DataSize = 0
	return nil
}

func generateTriangle() MeshData {
	white := math.NewVec4(1, 1, 1, 1)
	vertices := []math.Vertex3D{
		{Position: math.NewVec3(0, 0.5, 0), Texcoord: math.NewVec2(0.5, 0), Colour: white},
		{Position: math.NewVec3(-0.5, -0.5, 0), Texcoord: math.NewVec2(0, 1), Colour: white},
		{Position: math.NewVec3(0.5, -0.5, 0), Texcoord: math.NewVec2(1, 1), Colour: white},
	}
	indices := []uint32{0, 1, 2}
	math.GeometryGenerateNormals(vertices, indices)
	return MeshData{Vertices: vertices, Indices: indices}
}

func generateQuad() MeshData {
	white := math.NewVec4(1, 1, 1, 1)
	vertices := []math.Vertex3D{
		{Position: math.NewVec3(-0.5, 0.5, 0), Texcoord: math.NewVec2(0, 0), Colour: white},
		{Position: math.NewVec3(-0.5, -0.5, 0), Texcoord: math.NewVec2(0, 1), Colour: white},
		{Position: math.NewVec3(0.5, -0.5, 0), Texcoord: math.NewVec2(1, 1), Colour: white},
		{Position: math.NewVec3(0.5, 0.5, 0), Texcoord: math.NewVec2(1, 0), Colour: white},
	}
	indices := []uint32{0, 1, 2, 0, 2, 3}
	math.GeometryGenerateNormals(vertices, indices)
	return MeshData{Vertices: vertices, Indices: indices}
}

func generateCube() MeshData {
	white := math.NewVec4(1, 1, 1, 1)
	half := float32(0.5)

	// 4 vertices per face so each face keeps a flat normal.
	faces := []struct {
		normal  math.Vec3
		corners [4]math.Vec3
	}{
		{math.NewVec3(0, 0, 1), [4]math.Vec3{
			math.NewVec3(-half, -half, half), math.NewVec3(half, -half, half),
			math.NewVec3(half, half, half), math.NewVec3(-half, half, half)}},
		{math.NewVec3(0, 0, -1), [4]math.Vec3{
			math.NewVec3(half, -half, -half), math.NewVec3(-half, -half, -half),
			math.NewVec3(-half, half, -half), math.NewVec3(half, half, -half)}},
		{math.NewVec3(1, 0, 0), [4]math.Vec3{
			math.NewVec3(half, -half, half), math.NewVec3(half, -half, -half),
			math.NewVec3(half, half, -half), math.NewVec3(half, half, half)}},
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{
			math.NewVec3(-half, -half, -half), math.NewVec3(-half, -half, half),
			math.NewVec3(-half, half, half), math.NewVec3(-half, half, -half)}},
		{math.NewVec3(0, 1, 0), [4]math.Vec3{
			math.NewVec3(-half, half, half), math.NewVec3(half, half, half),
			math.NewVec3(half, half, -half), math.NewVec3(-half, half, -half)}},
		{math.NewVec3(0, -1, 0), [4]math.Vec3{
			math.NewVec3(-half, -half, -half), math.NewVec3(half, -half, -half),
			math.NewVec3(half, -half, half), math.NewVec3(-half, -half, half)}},
	}

	uvs := [4]math.Vec2{
		math.NewVec2(0, 1), math.NewVec2(1, 1), math.NewVec2(1, 0), math.NewVec2(0, 0),
	}

	vertices := make([]math.Vertex3D, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, face := range faces {
		base := uint32(len(vertices))
		for c := 0; c < 4; c++ {
			vertices = append(vertices, math.Vertex3D{
				Position: face.corners[c],
				Normal:   face.normal,
				Texcoord: uvs[c],
				Colour:   white,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}

	return MeshData{Vertices: vertices, Indices: indices}
}
