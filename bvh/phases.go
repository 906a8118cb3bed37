package bvh

import (
	"fmt"

	"github.com/achilleasa/clbvh/device"
)

// The state of a single Build call.
type buildState struct {
	*Builder

	in      Input
	nodes   device.MemoryID
	queue   int
	count   int
	scratch *scratchSet
	stats   *Stats

	// Persistent scratch buffers.
	bboxes  device.MemoryID
	codes   device.MemoryID
	perm    device.MemoryID
	nodeMap device.MemoryID
	segMap  device.MemoryID

	totalNodes int

	// The [first, end) node range allocated by each level that emitted nodes.
	levelRanges [][2]int
}

func (bs *buildState) function(kt kernelType) *device.Function {
	return bs.ctx.Function(bs.kernels[kt])
}

// Bind args and run a 1D dispatch with at least items work items.
func (bs *buildState) exec(kt kernelType, items int, args ...interface{}) error {
	fn := bs.function(kt)
	if err := fn.SetArgs(args...); err != nil {
		return err
	}
	return fn.Exec1D(bs.queue, 0, roundUp(items, bs.wgSize), bs.wgSize)
}

func (bs *buildState) barrier() error {
	return bs.ctx.EnqueueBarrier(bs.queue)
}

// Phase 1: one bounding box per triangle.
func (bs *buildState) buildPrimitiveBBoxes() error {
	var err error
	if bs.bboxes, err = bs.scratch.alloc(bs.count * sizeofBBox); err != nil {
		return err
	}

	if err = bs.exec(buildPrimitiveBBox, bs.count, bs.in.Vertices, bs.in.Indices, bs.bboxes, uint32(bs.count)); err != nil {
		return err
	}
	return bs.barrier()
}

// Phase 2: reduce the primitive boxes to the scene box and encode the
// primitive centroids. At most two reduction levels are alive at any time.
func (bs *buildState) encodeMortonCodes() error {
	src, count := bs.bboxes, bs.count
	blockSize := bs.wgSize << 1
	for {
		groups := (count + blockSize - 1) / blockSize
		dst, err := bs.scratch.alloc(groups * sizeofBBox)
		if err != nil {
			return err
		}

		fn := bs.function(reduceBBox)
		if err = fn.SetArgs(src, dst, uint32(count), device.Local(bs.wgSize*sizeofBBox)); err != nil {
			return err
		}
		if err = fn.Exec1D(bs.queue, 0, groups*bs.wgSize, bs.wgSize); err != nil {
			return err
		}
		if err = bs.barrier(); err != nil {
			return err
		}

		if src != bs.bboxes {
			bs.scratch.release(src)
		}
		src, count = dst, groups
		if groups == 1 {
			break
		}
	}
	sceneBBox := src

	paddedCount := sortSize(bs.count)
	var err error
	if bs.codes, err = bs.scratch.alloc(paddedCount * sizeofUint32); err != nil {
		return err
	}
	if bs.perm, err = bs.scratch.alloc(paddedCount * sizeofUint32); err != nil {
		return err
	}

	err = bs.exec(mortonEncode, paddedCount, bs.bboxes, sceneBBox, bs.codes, bs.perm, uint32(bs.count), uint32(paddedCount))
	if err != nil {
		return err
	}
	if err = bs.barrier(); err != nil {
		return err
	}

	bs.scratch.release(sceneBBox)
	return nil
}

// Phase 3: bitonic sort of the (code, primitive) pairs.
func (bs *buildState) sortMortonCodes() error {
	passes := BitonicSchedule(bs.count)
	for _, pass := range passes {
		local := bs.wgSize
		if pass.Threads < local {
			local = pass.Threads
		}

		fn := bs.function(pass.kernel)
		if err := fn.SetArgs(bs.codes, bs.perm, uint32(pass.Inc), uint32(pass.Dir)); err != nil {
			return err
		}
		if err := fn.Exec1D(bs.queue, 0, pass.Threads, local); err != nil {
			return err
		}
		if err := bs.barrier(); err != nil {
			return err
		}
	}

	bs.stats.SortPasses = len(passes)
	return nil
}

// Phase 4: reorder the index and material buffers through a shared
// auxiliary buffer.
func (bs *buildState) rearrangePrimitives() error {
	aux, err := bs.scratch.alloc(3 * bs.count * sizeofUint32)
	if err != nil {
		return err
	}
	defer bs.scratch.release(aux)

	targets := []struct {
		id     device.MemoryID
		stride int
	}{
		{bs.in.Indices, 3},
		{bs.in.Materials, 1},
	}

	for _, target := range targets {
		items := bs.count * target.stride
		if err = bs.exec(gatherUint, items, target.id, aux, bs.perm, uint32(bs.count), uint32(target.stride)); err != nil {
			return err
		}
		if err = bs.barrier(); err != nil {
			return err
		}
		if err = bs.ctx.Memory(aux).CopyTo(bs.queue, bs.ctx.Memory(target.id), 0, 0, items*sizeofUint32); err != nil {
			return err
		}
		if err = bs.barrier(); err != nil {
			return err
		}
	}
	return nil
}

// Read a single uint32 value once the queue drains.
func (bs *buildState) readUint32(id device.MemoryID, index int) (uint32, error) {
	if err := bs.ctx.FinishCommands(bs.queue); err != nil {
		return 0, err
	}

	var out [1]uint32
	if err := bs.ctx.Memory(id).Read(bs.queue, index*sizeofUint32, out[:]); err != nil {
		return 0, err
	}
	return out[0], nil
}

// Phase 5: emit the tree one treelet level at a time.
func (bs *buildState) emitTreelets() error {
	var err error
	if bs.nodeMap, err = bs.scratch.alloc(bs.count * sizeofUint32); err != nil {
		return err
	}
	if bs.segMap, err = bs.scratch.alloc((bs.count + 1) * sizeofUint32); err != nil {
		return err
	}

	if err = bs.scanner.Fill(bs.nodeMap, bs.count, 0, bs.queue); err != nil {
		return err
	}
	root := []Node{{Left: 0, Right: uint32(bs.count), Parent: InvalidIndex, Leaf: 1}}
	if err = bs.ctx.Memory(bs.nodes).Write(bs.queue, 0, root); err != nil {
		return err
	}
	bs.totalNodes = 1
	if err = bs.barrier(); err != nil {
		return err
	}

	for level := 0; level < NumLevels; level++ {
		done, err := bs.emitLevel(level)
		if err != nil {
			return fmt.Errorf("level %d: %w", level, err)
		}
		bs.stats.Levels++
		if done {
			break
		}
	}
	return nil
}

// Process a single treelet level. Returns true when every segment holds a
// single primitive and no further splits are possible.
func (bs *buildState) emitLevel(level int) (bool, error) {
	shift := windowShift(level)

	// Segment map: after scanning the start flags segMap[i+1]-1 is the
	// segment of primitive i and segMap[count] the number of segments.
	err := bs.exec(markSegments, bs.count, bs.nodeMap, bs.segMap, uint32(bs.count))
	if err != nil {
		return false, err
	}
	if err = bs.barrier(); err != nil {
		return false, err
	}
	if err = bs.scanner.Scan(bs.segMap, bs.count, bs.segMap, bs.queue); err != nil {
		return false, err
	}
	if err = bs.barrier(); err != nil {
		return false, err
	}

	numSegments := 1
	if level > 0 {
		value, err := bs.readUint32(bs.segMap, bs.count)
		if err != nil {
			return false, err
		}
		numSegments = int(value)
	}
	if numSegments == bs.count {
		return true, nil
	}

	heads, err := bs.scratch.alloc((numSegments + 1) * sizeofUint32)
	if err != nil {
		return false, err
	}
	defer bs.scratch.release(heads)
	treelets, err := bs.scratch.alloc(numSegments * treeletStride * sizeofUint32)
	if err != nil {
		return false, err
	}
	defer bs.scratch.release(treelets)
	counts, err := bs.scratch.alloc((numSegments + 1) * sizeofUint32)
	if err != nil {
		return false, err
	}
	defer bs.scratch.release(counts)

	if err = bs.exec(buildSegmentHeads, bs.count, bs.segMap, heads, uint32(bs.count)); err != nil {
		return false, err
	}
	if err = bs.scanner.Fill(treelets, numSegments*treeletStride, 0, bs.queue); err != nil {
		return false, err
	}
	if err = bs.barrier(); err != nil {
		return false, err
	}

	err = bs.exec(buildSplits, bs.count, bs.codes, bs.segMap, heads, treelets, uint32(bs.count), shift, uint32(bs.opts.MaxLeafPrims))
	if err != nil {
		return false, err
	}
	if err = bs.barrier(); err != nil {
		return false, err
	}
	if err = bs.exec(buildTreelet, numSegments, treelets, counts, uint32(numSegments)); err != nil {
		return false, err
	}
	if err = bs.barrier(); err != nil {
		return false, err
	}

	// Per-segment node counts become offsets into this level's node range.
	if err = bs.scanner.Scan(counts, numSegments, counts, bs.queue); err != nil {
		return false, err
	}
	newNodes, err := bs.readUint32(counts, numSegments)
	if err != nil {
		return false, err
	}

	bs.logger.Debugf("level %d: %d segments, %d new nodes", level, numSegments, newNodes)
	if newNodes == 0 {
		return false, nil
	}

	err = bs.exec(
		buildNodes,
		bs.count,
		bs.codes,
		bs.segMap,
		heads,
		treelets,
		counts,
		bs.nodeMap,
		bs.nodes,
		uint32(bs.count),
		shift,
		uint32(bs.totalNodes),
	)
	if err != nil {
		return false, err
	}
	if err = bs.barrier(); err != nil {
		return false, err
	}

	bs.levelRanges = append(bs.levelRanges, [2]int{bs.totalNodes, bs.totalNodes + int(newNodes)})
	bs.totalNodes += int(newNodes)
	return false, nil
}

// Phase 6: leaf boxes from the primitive boxes, then internal nodes from the
// deepest level range up to the root.
func (bs *buildState) buildNodeBBoxes() error {
	err := bs.exec(buildLeafBBox, bs.totalNodes, bs.nodes, bs.bboxes, bs.perm, uint32(bs.totalNodes))
	if err != nil {
		return err
	}
	if err = bs.barrier(); err != nil {
		return err
	}

	for r := len(bs.levelRanges) - 1; r >= 0; r-- {
		first, end := bs.levelRanges[r][0], bs.levelRanges[r][1]
		for pass := 0; pass < NodeBBoxPasses; pass++ {
			if err = bs.exec(buildNodeBBox, end-first, bs.nodes, uint32(first), uint32(end-first)); err != nil {
				return err
			}
			if err = bs.barrier(); err != nil {
				return err
			}
		}
	}

	// The root is not part of any level range.
	if err = bs.exec(buildNodeBBox, 1, bs.nodes, uint32(0), uint32(1)); err != nil {
		return err
	}
	return bs.barrier()
}

func roundUp(n, multiple int) int {
	return ((n + multiple - 1) / multiple) * multiple
}
