package bvh

import (
	"fmt"
	"unsafe"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/types"
)

// Node is the device layout of a BVH node. Internal nodes store their
// children in Left and Right; leaves store the [start, end) range of their
// primitives in the reordered index buffer.
type Node struct {
	Min types.Vec4
	Max types.Vec4

	Left   uint32
	Right  uint32
	Parent uint32
	Axis   uint32
	Level  uint32
	Leaf   uint32

	_ [2]uint32
}

// Size of device records in bytes.
const (
	sizeofNode   = int(unsafe.Sizeof(Node{}))
	sizeofBBox   = 32
	sizeofUint32 = 4
)

// Returns true if this is a leaf node.
func (n *Node) IsLeaf() bool {
	return n.Leaf != 0
}

// Get the node bounding box.
func (n *Node) BBox() types.BBox {
	return types.BBox{Min: n.Min.Vec3(), Max: n.Max.Vec3()}
}

// Number of primitives in a leaf.
func (n *Node) NumPrimitives() int {
	if !n.IsLeaf() {
		return 0
	}
	return int(n.Right - n.Left)
}

// The number of nodes a node buffer must hold for the given triangle count.
func MaxNodes(numTriangles int) int {
	if numTriangles <= 1 {
		return 1
	}
	return 2*numTriangles - 1
}

// Allocate a node buffer large enough for a mesh with numTriangles triangles.
func AllocateNodes(ctx *device.Context, id device.MemoryID, numTriangles int) error {
	return ctx.Memory(id).Initialize(MaxNodes(numTriangles)*sizeofNode, device.ReadWrite)
}

// Read the first count nodes of a node buffer.
func ReadNodes(ctx *device.Context, id device.MemoryID, count, queue int) ([]Node, error) {
	nodes := make([]Node, count)
	if count == 0 {
		return nodes, nil
	}
	if err := ctx.Memory(id).Read(queue, 0, nodes); err != nil {
		return nil, fmt.Errorf("bvh: could not read %d nodes: %w", count, err)
	}
	return nodes, nil
}
