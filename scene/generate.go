package scene

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/achilleasa/clbvh/types"
)

// Layout selects the geometry produced by GenerateMesh.
type Layout uint8

const (
	// Small triangles scattered uniformly inside a cube.
	LayoutRandom Layout = iota

	// A regular grid of quads on the XZ plane, two triangles per quad.
	LayoutGrid

	// Coincident triangles sharing the same three vertices.
	LayoutDegenerate
)

// Number of distinct material indices assigned by GenerateMesh.
const numGeneratedMaterials = 8

// Half-size of the cube used by the random layout.
const randomLayoutExtent = 100

func (l Layout) String() string {
	switch l {
	case LayoutRandom:
		return "random"
	case LayoutGrid:
		return "grid"
	case LayoutDegenerate:
		return "degenerate"
	}

	panic("unsupported layout")
}

// Parse a layout name.
func ParseLayout(name string) (Layout, error) {
	for l := LayoutRandom; l <= LayoutDegenerate; l++ {
		if l.String() == name {
			return l, nil
		}
	}
	return LayoutRandom, fmt.Errorf("scene: unknown layout %q", name)
}

// Generate a synthetic mesh with n triangles. The same seed always yields the
// same mesh.
func GenerateMesh(layout Layout, n int, seed int64) *Mesh {
	m := &Mesh{
		Triangles: make([]Triangle, 0, n),
		Materials: make([]uint32, 0, n),
	}

	switch layout {
	case LayoutGrid:
		generateGrid(m, n)
	case LayoutDegenerate:
		if n > 0 {
			m.Vertices = []Vertex{
				newVertex(types.XYZ(0, 0, 0), 0, 0),
				newVertex(types.XYZ(1, 0, 0), 1, 0),
				newVertex(types.XYZ(0, 0, 1), 0, 1),
			}
		}
		for i := 0; i < n; i++ {
			m.Triangles = append(m.Triangles, Triangle{0, 1, 2})
		}
	default:
		generateRandom(m, n, rand.New(rand.NewSource(seed)))
	}

	for i := 0; i < n; i++ {
		m.Materials = append(m.Materials, uint32(i%numGeneratedMaterials))
	}
	return m
}

func generateRandom(m *Mesh, n int, rng *rand.Rand) {
	coord := func(scale float32) float32 {
		return (rng.Float32()*2 - 1) * scale
	}

	m.Vertices = make([]Vertex, 0, 3*n)
	for i := 0; i < n; i++ {
		center := types.XYZ(coord(randomLayoutExtent), coord(randomLayoutExtent), coord(randomLayoutExtent))
		first := uint32(len(m.Vertices))
		for v := 0; v < 3; v++ {
			p := center.Add(types.XYZ(coord(1), coord(1), coord(1)))
			m.Vertices = append(m.Vertices, newVertex(p, float32(v&1), float32(v>>1)))
		}
		m.Triangles = append(m.Triangles, Triangle{first, first + 1, first + 2})
	}
}

func generateGrid(m *Mesh, n int) {
	if n == 0 {
		return
	}

	side := int(math.Ceil(math.Sqrt(float64(n) / 2)))
	stride := uint32(side + 1)

	m.Vertices = make([]Vertex, 0, (side+1)*(side+1))
	for z := 0; z <= side; z++ {
		for x := 0; x <= side; x++ {
			u, v := float32(x)/float32(side), float32(z)/float32(side)
			m.Vertices = append(m.Vertices, newVertex(types.XYZ(float32(x), 0, float32(z)), u, v))
		}
	}

	for quad := 0; len(m.Triangles) < n; quad++ {
		x, z := uint32(quad%side), uint32(quad/side)
		v00 := z*stride + x
		v10, v01, v11 := v00+1, v00+stride, v00+stride+1

		m.Triangles = append(m.Triangles, Triangle{v00, v10, v11})
		if len(m.Triangles) < n {
			m.Triangles = append(m.Triangles, Triangle{v00, v11, v01})
		}
	}
}

func newVertex(p types.Vec3, u, v float32) Vertex {
	return Vertex{
		Position: p.Vec4(1),
		Normal:   types.XYZW(0, 1, 0, 0),
		Tangent:  types.XYZW(1, 0, 0, 0),
		UV:       types.Vec2{u, v},
	}
}
