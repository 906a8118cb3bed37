package scene

import (
	"errors"
	"fmt"

	"github.com/achilleasa/clbvh/types"
)

var ErrInvalidMesh = errors.New("scene: invalid mesh")

// Vertex is the device layout of a mesh vertex (64 bytes). Position must
// remain the first field; the builder reads it as the first 3 floats of each
// record.
type Vertex struct {
	Position types.Vec4
	Normal   types.Vec4
	Tangent  types.Vec4
	UV       types.Vec2

	_ [2]float32
}

// A triangle as three vertex indices.
type Triangle [3]uint32

// Mesh is a host-side indexed triangle mesh.
type Mesh struct {
	Vertices  []Vertex
	Triangles []Triangle

	// One material index per triangle. May be nil in which case all
	// triangles use material 0.
	Materials []uint32
}

// Number of triangles in the mesh.
func (m *Mesh) NumTriangles() int {
	return len(m.Triangles)
}

// Get the bounding box of all referenced vertices.
func (m *Mesh) BBox() types.BBox {
	bbox := types.EmptyBBox()
	for _, tri := range m.Triangles {
		for _, index := range tri {
			bbox = bbox.Extend(m.Vertices[index].Position.Vec3())
		}
	}
	return bbox
}

// Check that all triangles reference existing vertices and that the material
// list matches the triangle count.
func (m *Mesh) Validate() error {
	if m.Materials != nil && len(m.Materials) != len(m.Triangles) {
		return fmt.Errorf("%w: %d material indices for %d triangles", ErrInvalidMesh, len(m.Materials), len(m.Triangles))
	}
	for triIndex, tri := range m.Triangles {
		for _, index := range tri {
			if int(index) >= len(m.Vertices) {
				return fmt.Errorf("%w: triangle %d references vertex %d; mesh has %d vertices", ErrInvalidMesh, triIndex, index, len(m.Vertices))
			}
		}
	}
	return nil
}
