package bvh

type kernelType uint8

// The list of kernels that implement the BVH builder.
const (
	// primitive bounds and morton codes
	buildPrimitiveBBox kernelType = iota
	reduceBBox
	mortonEncode
	// bitonic sort network; each kernel sorts 2, 4, 8 or 16 elements per thread
	mortonSortG2
	mortonSortG4
	mortonSortG8
	mortonSortG16
	// primitive reordering
	gatherUint
	// treelet emission
	markSegments
	buildSegmentHeads
	buildSplits
	buildTreelet
	buildNodes
	// node bounds
	buildLeafBBox
	buildNodeBBox
	//
	numKernels
)

// Implements Stringer; map kernel type to the kernel name as defined in the CL source files.
func (kt kernelType) String() string {
	switch kt {
	case buildPrimitiveBBox:
		return "build_primitive_bbox"
	case reduceBBox:
		return "reduce_bbox"
	case mortonEncode:
		return "morton_encode"
	case mortonSortG2:
		return "morton_sort_g2"
	case mortonSortG4:
		return "morton_sort_g4"
	case mortonSortG8:
		return "morton_sort_g8"
	case mortonSortG16:
		return "morton_sort_g16"
	case gatherUint:
		return "gather_uint"
	case markSegments:
		return "mark_segments"
	case buildSegmentHeads:
		return "build_segment_heads"
	case buildSplits:
		return "build_splits"
	case buildTreelet:
		return "build_treelet"
	case buildNodes:
		return "build_nodes"
	case buildLeafBBox:
		return "build_leaf_bbox"
	case buildNodeBBox:
		return "build_node_bbox"
	}

	panic("unsupported kernel type")
}
