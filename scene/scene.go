// Package scene manages the device-resident buffers of a triangle mesh and
// the BVH built over it.
package scene

import (
	"fmt"
	"reflect"

	"github.com/achilleasa/clbvh/bvh"
	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/log"
	"github.com/achilleasa/clbvh/types"
)

// Size of buffer elements in bytes.
const (
	sizeofVertex   = 64
	sizeofIndex    = 4
	sizeofMaterial = 4
)

// The device buffers owned by a scene.
type bufferSet struct {
	// Geometry
	Vertices device.MemoryID
	Indices  device.MemoryID

	// Per-triangle material indices
	Materials device.MemoryID

	// Bvh node storage.
	Nodes device.MemoryID
}

func newBufferSet(ctx *device.Context) bufferSet {
	return bufferSet{
		Vertices:  ctx.NewMemory(),
		Indices:   ctx.NewMemory(),
		Materials: ctx.NewMemory(),
		Nodes:     ctx.NewMemory(),
	}
}

// Delete all buffers.
func (bs *bufferSet) Release(ctx *device.Context) {
	reflVal := reflect.ValueOf(*bs)
	for fieldIndex := 0; fieldIndex < reflVal.NumField(); fieldIndex++ {
		if id, ok := reflVal.Field(fieldIndex).Interface().(device.MemoryID); ok && id != device.InvalidMemory {
			ctx.DeleteMemory(id)
		}
	}
	*bs = bufferSet{
		Vertices:  device.InvalidMemory,
		Indices:   device.InvalidMemory,
		Materials: device.InvalidMemory,
		Nodes:     device.InvalidMemory,
	}
}

// Scene is a mesh uploaded to a device context.
type Scene struct {
	logger log.Logger
	ctx    *device.Context

	buffers bufferSet
	queue   int

	NumVertices  int
	NumTriangles int
	NumNodes     int

	// Set once a BVH has been built for the current mesh.
	BvhBuilt bool

	// Set when the node buffer holds the BVH.
	BvhOnDevice bool
}

// Create a new scene bound to a ready device context.
func New(ctx *device.Context) *Scene {
	return &Scene{
		logger:  log.New("scene"),
		ctx:     ctx,
		buffers: newBufferSet(ctx),
	}
}

// Handles of the scene buffers.
func (s *Scene) VertexBuffer() device.MemoryID   { return s.buffers.Vertices }
func (s *Scene) IndexBuffer() device.MemoryID    { return s.buffers.Indices }
func (s *Scene) MaterialBuffer() device.MemoryID { return s.buffers.Materials }
func (s *Scene) NodeBuffer() device.MemoryID     { return s.buffers.Nodes }

// Upload a mesh to the device replacing any previously uploaded mesh. The
// node buffer is sized for the worst-case tree of the mesh.
func (s *Scene) Upload(m *Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}

	numTris := m.NumTriangles()
	indices := make([]uint32, 0, 3*numTris)
	for _, tri := range m.Triangles {
		indices = append(indices, tri[0], tri[1], tri[2])
	}
	materials := m.Materials
	if materials == nil {
		materials = make([]uint32, numTris)
	}

	s.BvhBuilt, s.BvhOnDevice = false, false

	uploads := []struct {
		name  string
		id    device.MemoryID
		data  interface{}
		count int
		size  int
		usage device.Usage
	}{
		{"vertices", s.buffers.Vertices, m.Vertices, len(m.Vertices), sizeofVertex, device.ReadOnly},
		{"indices", s.buffers.Indices, indices, len(indices), sizeofIndex, device.ReadWrite},
		{"materials", s.buffers.Materials, materials, len(materials), sizeofMaterial, device.ReadWrite},
	}
	for _, up := range uploads {
		var err error
		mem := s.ctx.Memory(up.id)
		if up.count == 0 {
			// Keep a minimal allocation so the handle stays bound.
			err = mem.Initialize(up.size, up.usage)
		} else {
			err = mem.InitializeWithData(up.data, up.usage)
		}
		if err != nil {
			return fmt.Errorf("scene: could not upload %s: %w", up.name, err)
		}
	}

	if err := bvh.AllocateNodes(s.ctx, s.buffers.Nodes, numTris); err != nil {
		return fmt.Errorf("scene: could not allocate node buffer: %w", err)
	}

	s.NumVertices = len(m.Vertices)
	s.NumTriangles = numTris
	s.NumNodes = 0
	s.logger.Debugf("uploaded %d vertices and %d triangles", s.NumVertices, s.NumTriangles)
	return nil
}

// Build a BVH for the uploaded mesh. The index and material buffers are
// reordered to match the tree leaves. A mesh without triangles gets a single
// empty leaf root and no device build.
func (s *Scene) BuildBVH(b *bvh.Builder, queue int) (*bvh.Stats, error) {
	s.BvhBuilt, s.BvhOnDevice = false, false
	s.queue = queue

	if s.NumTriangles == 0 {
		if err := s.writeEmptyRoot(queue); err != nil {
			return nil, err
		}
		s.NumNodes = 1
		s.BvhBuilt, s.BvhOnDevice = true, true
		return &bvh.Stats{Nodes: 1, Leaves: 1}, nil
	}

	in := bvh.Input{
		Vertices:     s.buffers.Vertices,
		Indices:      s.buffers.Indices,
		Materials:    s.buffers.Materials,
		NumTriangles: s.NumTriangles,
	}
	stats, err := b.Build(in, s.buffers.Nodes, queue)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	s.NumNodes = stats.Nodes
	s.BvhBuilt, s.BvhOnDevice = true, true
	return stats, nil
}

func (s *Scene) writeEmptyRoot(queue int) error {
	empty := types.EmptyBBox()
	root := []bvh.Node{{
		Min:    empty.Min.Vec4(0),
		Max:    empty.Max.Vec4(0),
		Parent: bvh.InvalidIndex,
		Leaf:   1,
	}}
	if err := s.ctx.Memory(s.buffers.Nodes).Write(queue, 0, root); err != nil {
		return fmt.Errorf("scene: could not write root node: %w", err)
	}
	return s.ctx.FinishCommands(queue)
}

// Read back the BVH nodes.
func (s *Scene) Nodes() ([]bvh.Node, error) {
	if !s.BvhOnDevice {
		return nil, fmt.Errorf("scene: bvh has not been built")
	}
	return bvh.ReadNodes(s.ctx, s.buffers.Nodes, s.NumNodes, s.queue)
}

// Read back the triangle list in leaf order.
func (s *Scene) Triangles() ([]Triangle, error) {
	tris := make([]Triangle, s.NumTriangles)
	if s.NumTriangles == 0 {
		return tris, nil
	}
	if err := s.ctx.Memory(s.buffers.Indices).Read(s.queue, 0, tris); err != nil {
		return nil, fmt.Errorf("scene: could not read triangles: %w", err)
	}
	return tris, nil
}

// Read back the per-triangle material indices in leaf order.
func (s *Scene) Materials() ([]uint32, error) {
	materials := make([]uint32, s.NumTriangles)
	if s.NumTriangles == 0 {
		return materials, nil
	}
	if err := s.ctx.Memory(s.buffers.Materials).Read(s.queue, 0, materials); err != nil {
		return nil, fmt.Errorf("scene: could not read materials: %w", err)
	}
	return materials, nil
}

// Approximate device memory held by the scene in bytes.
func (s *Scene) DeviceBytes() int {
	total := 0
	for _, id := range []device.MemoryID{s.buffers.Vertices, s.buffers.Indices, s.buffers.Materials, s.buffers.Nodes} {
		total += s.ctx.Memory(id).Size()
	}
	return total
}

// Release all device buffers. The scene cannot be used afterwards.
func (s *Scene) Release() {
	s.buffers.Release(s.ctx)
	s.NumVertices, s.NumTriangles, s.NumNodes = 0, 0, 0
	s.BvhBuilt, s.BvhOnDevice = false, false
}
