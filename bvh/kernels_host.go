package bvh

import (
	_ "embed"
	"math"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/types"
)

//go:embed CL/bvh.cl
var bvhSource string

// Program holds the builder kernels together with host replicas used by
// emulated devices.
var Program = &device.Program{
	Name:   "bvh",
	Source: bvhSource,
	Host: map[string]device.HostKernel{
		buildPrimitiveBBox.String(): {Args: 4, Run: hostBuildPrimitiveBBox},
		reduceBBox.String():         {Args: 4, Run: hostReduceBBox},
		mortonEncode.String():       {Args: 6, Run: hostMortonEncode},
		mortonSortG2.String():       {Args: 4, Run: hostMortonSort(1)},
		mortonSortG4.String():       {Args: 4, Run: hostMortonSort(2)},
		mortonSortG8.String():       {Args: 4, Run: hostMortonSort(3)},
		mortonSortG16.String():      {Args: 4, Run: hostMortonSort(4)},
		gatherUint.String():         {Args: 5, Run: hostGatherUint},
		markSegments.String():       {Args: 3, Run: hostMarkSegments},
		buildSegmentHeads.String():  {Args: 3, Run: hostBuildSegmentHeads},
		buildSplits.String():        {Args: 7, Run: hostBuildSplits},
		buildTreelet.String():       {Args: 3, Run: hostBuildTreelet},
		buildNodes.String():         {Args: 10, Run: hostBuildNodes},
		buildLeafBBox.String():      {Args: 4, Run: hostBuildLeafBBox},
		// Passes read boxes written by other work-groups of the same dispatch.
		buildNodeBBox.String():      {Args: 3, Run: hostBuildNodeBBox, Serial: true},
	},
}

// Device layout of a bounding box.
type deviceBBox struct {
	Min types.Vec4
	Max types.Vec4
}

// Number of float32 values in a scene vertex record.
const vertexStride = 16

func emptyDeviceBBox() deviceBBox {
	return deviceBBox{
		Min: types.Vec4{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32, 0},
		Max: types.Vec4{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32, 0},
	}
}

func (b deviceBBox) merge(other deviceBBox) deviceBBox {
	return deviceBBox{
		Min: minVec4(b.Min, other.Min),
		Max: maxVec4(b.Max, other.Max),
	}
}

func (b deviceBBox) bbox() types.BBox {
	return types.BBox{Min: b.Min.Vec3(), Max: b.Max.Vec3()}
}

func minVec4(a, b types.Vec4) types.Vec4 {
	for i := 0; i < 4; i++ {
		if b[i] < a[i] {
			a[i] = b[i]
		}
	}
	return a
}

func maxVec4(a, b types.Vec4) types.Vec4 {
	for i := 0; i < 4; i++ {
		if b[i] > a[i] {
			a[i] = b[i]
		}
	}
	return a
}

func hostBuildPrimitiveBBox(wg *device.WorkGroup) error {
	vertices := wg.Float32s(0)
	indices := wg.Uint32s(1)
	bboxes := device.View[deviceBBox](wg.Bytes(2))
	count := int(wg.Uint32(3))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= count {
			continue
		}

		b := emptyDeviceBBox()
		for v := 0; v < 3; v++ {
			offset := int(indices[3*gid+v]) * vertexStride
			p := types.Vec4{vertices[offset], vertices[offset+1], vertices[offset+2], 0}
			b = deviceBBox{Min: minVec4(b.Min, p), Max: maxVec4(b.Max, p)}
		}
		bboxes[gid] = b
	}
	return nil
}

func hostReduceBBox(wg *device.WorkGroup) error {
	in := device.View[deviceBBox](wg.Bytes(0))
	out := device.View[deviceBBox](wg.Bytes(1))
	count := int(wg.Uint32(2))
	scratch := device.View[deviceBBox](wg.Bytes(3))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		b := emptyDeviceBBox()
		if 2*gid < count {
			b = b.merge(in[2*gid])
		}
		if 2*gid+1 < count {
			b = b.merge(in[2*gid+1])
		}
		scratch[lid] = b
	}

	for stride := wg.Size() >> 1; stride > 0; stride >>= 1 {
		for lid := 0; lid < stride; lid++ {
			scratch[lid] = scratch[lid].merge(scratch[lid+stride])
		}
	}

	out[wg.Group[0]] = scratch[0]
	return nil
}

func hostMortonEncode(wg *device.WorkGroup) error {
	bboxes := device.View[deviceBBox](wg.Bytes(0))
	sceneBBox := device.View[deviceBBox](wg.Bytes(1))[0].bbox()
	codes := wg.Uint32s(2)
	perm := wg.Uint32s(3)
	count := int(wg.Uint32(4))
	paddedCount := int(wg.Uint32(5))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= paddedCount {
			continue
		}

		perm[gid] = uint32(gid)
		if gid >= count {
			codes[gid] = sortPaddingKey
			continue
		}
		codes[gid] = MortonCode(bboxes[gid].bbox().Center(), sceneBBox)
	}
	return nil
}

// Build a host replica of morton_sort_gK where K = 1 << levels.
func hostMortonSort(levels int) func(wg *device.WorkGroup) error {
	k := 1 << uint(levels)
	return func(wg *device.WorkGroup) error {
		codes := wg.Uint32s(0)
		perm := wg.Uint32s(1)
		inc := int(wg.Uint32(2))
		dir := int(wg.Uint32(3))

		keys := make([]uint32, k)
		payload := make([]uint32, k)
		s := inc >> uint(levels-1)
		for lid := 0; lid < wg.Size(); lid++ {
			t := wg.GlobalID(lid)
			low := t & (s - 1)
			i := ((t - low) << uint(levels)) + low
			asc := (i & dir) == 0

			for m := 0; m < k; m++ {
				keys[m], payload[m] = codes[i+m*s], perm[i+m*s]
			}
			for d := k >> 1; d > 0; d >>= 1 {
				for m := 0; m < k; m++ {
					if m&d != 0 {
						continue
					}
					if (asc && keys[m] > keys[m+d]) || (!asc && keys[m] < keys[m+d]) {
						keys[m], keys[m+d] = keys[m+d], keys[m]
						payload[m], payload[m+d] = payload[m+d], payload[m]
					}
				}
			}
			for m := 0; m < k; m++ {
				codes[i+m*s], perm[i+m*s] = keys[m], payload[m]
			}
		}
		return nil
	}
}

func hostGatherUint(wg *device.WorkGroup) error {
	src, dst, perm := wg.Uint32s(0), wg.Uint32s(1), wg.Uint32s(2)
	count := int(wg.Uint32(3))
	stride := int(wg.Uint32(4))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= count*stride {
			continue
		}
		dst[gid] = src[int(perm[gid/stride])*stride+gid%stride]
	}
	return nil
}

func hostMarkSegments(wg *device.WorkGroup) error {
	nodeMap, flags := wg.Uint32s(0), wg.Uint32s(1)
	count := int(wg.Uint32(2))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= count {
			continue
		}
		flags[gid] = 0
		if gid == 0 || nodeMap[gid] != nodeMap[gid-1] {
			flags[gid] = 1
		}
	}
	return nil
}

func hostBuildSegmentHeads(wg *device.WorkGroup) error {
	segMap, heads := wg.Uint32s(0), wg.Uint32s(1)
	count := int(wg.Uint32(2))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= count {
			continue
		}
		if segMap[gid+1] != segMap[gid] {
			heads[segMap[gid]] = uint32(gid)
		}
		if gid == count-1 {
			heads[segMap[count]] = uint32(count)
		}
	}
	return nil
}

func hostBuildSplits(wg *device.WorkGroup) error {
	codes, segMap, heads, treelets := wg.Uint32s(0), wg.Uint32s(1), wg.Uint32s(2), wg.Uint32s(3)
	count := int(wg.Uint32(4))
	shift := wg.Uint32(5)
	maxLeafPrims := wg.Uint32(6)

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= count {
			continue
		}

		seg := segMap[gid+1] - 1
		start, end := heads[seg], heads[seg+1]
		if end-start <= maxLeafPrims || uint32(gid) == start {
			continue
		}

		wa, wb := window(codes[gid-1], shift), window(codes[gid], shift)
		if wa == wb {
			continue
		}

		bit := highestBit(wa ^ wb)
		depth := 2 - bit
		slot := (1 << depth) - 1 + (wb >> (bit + 1))
		treelets[seg*treeletStride+slot] = uint32(gid)
	}
	return nil
}

func highestBit(v uint32) uint32 {
	switch {
	case v&4 != 0:
		return 2
	case v&2 != 0:
		return 1
	}
	return 0
}

func hostBuildTreelet(wg *device.WorkGroup) error {
	treelets, counts := wg.Uint32s(0), wg.Uint32s(1)
	numSegments := int(wg.Uint32(2))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= numSegments {
			continue
		}

		var splits uint32
		for _, split := range treelets[gid*treeletStride : gid*treeletStride+treeletSlots] {
			if split != 0 {
				splits++
			}
		}
		treelets[gid*treeletStride+treeletSlots] = splits << 1
		counts[gid] = splits << 1
	}
	return nil
}

func splitRank(treelet []uint32, slot uint32) uint32 {
	var rank uint32
	for q := uint32(0); q < slot; q++ {
		if treelet[q] != 0 {
			rank++
		}
	}
	return rank
}

// Follow the pass-through chain starting at slot and return the first slot
// holding a split.
func firstSplit(treelet []uint32, slot, depth, w uint32) (uint32, bool) {
	for ; depth < 3; depth++ {
		if treelet[slot] != 0 {
			return slot, true
		}
		slot = 2*slot + 1 + ((w >> (2 - depth)) & 1)
	}
	return 0, false
}

// Get the split axis of a treelet slot.
func slotAxis(slot uint32) uint32 {
	switch {
	case slot == 0:
		return 0
	case slot < 3:
		return 1
	}
	return 2
}

type treeletWalk struct {
	codes   []uint32
	treelet []uint32
	nodes   []Node
	shift   uint32
	first   uint32
}

func (tw *treeletWalk) writeChild(index, parent, level, slot, depth, start, end uint32) {
	n := Node{Parent: parent, Level: level}

	f, found := uint32(0), false
	if depth < 3 {
		f, found = firstSplit(tw.treelet, slot, depth, window(tw.codes[start], tw.shift))
	}
	if found {
		n.Left = tw.first + 2*splitRank(tw.treelet, f)
		n.Right = n.Left + 1
		n.Axis = slotAxis(f)
	} else {
		n.Left, n.Right, n.Leaf = start, end, 1
	}
	tw.nodes[index] = n
}

func hostBuildNodes(wg *device.WorkGroup) error {
	codes, segMap, heads, treelets, offsets, nodeMap := wg.Uint32s(0), wg.Uint32s(1), wg.Uint32s(2), wg.Uint32s(3), wg.Uint32s(4), wg.Uint32s(5)
	nodes := device.View[Node](wg.Bytes(6))
	count := int(wg.Uint32(7))
	shift := wg.Uint32(8)
	base := wg.Uint32(9)

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= count {
			continue
		}

		seg := segMap[gid+1] - 1
		treelet := treelets[seg*treeletStride : (seg+1)*treeletStride]
		if treelet[treeletSlots] == 0 {
			continue
		}

		segmentNode := nodeMap[gid]
		node := segmentNode
		level := nodes[segmentNode].Level
		start, end := heads[seg], heads[seg+1]
		tw := treeletWalk{codes: codes, treelet: treelet, nodes: nodes, shift: shift, first: base + offsets[seg]}
		w := window(codes[gid], shift)

		var slot uint32
		for depth := uint32(0); depth < 3; depth++ {
			bit := (w >> (2 - depth)) & 1
			if split := treelet[slot]; split != 0 {
				left := tw.first + 2*splitRank(treelet, slot)
				if uint32(gid) == split {
					tw.writeChild(left, node, level+1, 2*slot+1, depth+1, start, split)
					tw.writeChild(left+1, node, level+1, 2*slot+2, depth+1, split, end)
					if node == segmentNode {
						nodes[node].Left = left
						nodes[node].Right = left + 1
						nodes[node].Axis = depth
						nodes[node].Leaf = 0
					}
				}

				node = left + bit
				level++
				if bit != 0 {
					start = split
				} else {
					end = split
				}
			}
			slot = 2*slot + 1 + bit
		}

		nodeMap[gid] = node
	}
	return nil
}

func hostBuildLeafBBox(wg *device.WorkGroup) error {
	nodes := device.View[Node](wg.Bytes(0))
	bboxes := device.View[deviceBBox](wg.Bytes(1))
	perm := wg.Uint32s(2)
	numNodes := int(wg.Uint32(3))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= numNodes || nodes[gid].Leaf == 0 {
			continue
		}

		b := emptyDeviceBBox()
		for i := nodes[gid].Left; i < nodes[gid].Right; i++ {
			b = b.merge(bboxes[perm[i]])
		}
		nodes[gid].Min, nodes[gid].Max = b.Min, b.Max
	}
	return nil
}

func hostBuildNodeBBox(wg *device.WorkGroup) error {
	nodes := device.View[Node](wg.Bytes(0))
	first := int(wg.Uint32(1))
	count := int(wg.Uint32(2))

	for lid := 0; lid < wg.Size(); lid++ {
		gid := wg.GlobalID(lid)
		if gid >= count {
			continue
		}

		n := &nodes[first+gid]
		if n.Leaf != 0 {
			continue
		}
		l, r := nodes[n.Left], nodes[n.Right]
		n.Min, n.Max = minVec4(l.Min, r.Min), maxVec4(l.Max, r.Max)
	}
	return nil
}
