// Package bvh builds linear bounding volume hierarchies on a compute device.
//
// Primitives are sorted by the morton code of their centroids and the tree is
// emitted top-down, three code bits per level. For each level the sorted
// primitives are grouped into segments that share a node; every segment
// builds a depth-3 treelet from its 3-bit code window and the treelet splits
// become new nodes appended to the node buffer.
package bvh

import (
	"errors"
	"fmt"
	"time"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/log"
	"github.com/achilleasa/clbvh/scan"
)

const (
	// Width of the morton codes.
	MortonBits = 30

	// Code bits consumed by each treelet level.
	BitsPerLevel = 3

	// Number of treelet levels.
	NumLevels = MortonBits / BitsPerLevel

	// Upper bound for Options.MaxLeafPrims.
	MinPrimsPerNode = 4

	// Number of build_node_bbox dispatches per level range. Nodes created by
	// one level form parent chains of at most three generations.
	NodeBBoxPasses = 3

	// Parent index of the root node.
	InvalidIndex = 0xFFFFFFFF
)

const (
	sortPaddingKey = 0xFFFFFFFF
	windowMask     = 7
	treeletSlots   = 7
	treeletStride  = 8
)

var (
	ErrNotInitialized     = errors.New("bvh builder: not initialized")
	ErrEmptyMesh          = errors.New("bvh builder: mesh has no triangles")
	ErrNodeBufferTooSmall = errors.New("bvh builder: node buffer too small")
	ErrInputTooSmall      = errors.New("bvh builder: input buffer too small")
)

// Options for the builder.
type Options struct {
	// Number of work items per work-group.
	WorkGroupSize int

	// Segments with at most this many primitives are not split further.
	// Values are clamped to [1, MinPrimsPerNode].
	MaxLeafPrims int
}

// Default builder options.
func DefaultOptions() Options {
	return Options{
		WorkGroupSize: 128,
		MaxLeafPrims:  1,
	}
}

// Input describes a device-resident triangle mesh. Indices hold three vertex
// indices per triangle and Materials one material index per triangle. Both
// buffers are reordered in place to match the leaf ranges of the built tree.
type Input struct {
	Vertices     device.MemoryID
	Indices      device.MemoryID
	Materials    device.MemoryID
	NumTriangles int
}

// Builder runs the BVH build pipeline on a device context.
type Builder struct {
	logger log.Logger
	opts   Options

	ctx     *device.Context
	scanner *scan.Scanner
	wgSize  int
	kernels []device.FunctionID
}

// Create a new builder. Init must be called before use.
func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.WorkGroupSize <= 0 {
		opts.WorkGroupSize = def.WorkGroupSize
	}
	if opts.MaxLeafPrims <= 0 {
		opts.MaxLeafPrims = def.MaxLeafPrims
	}
	if opts.MaxLeafPrims > MinPrimsPerNode {
		opts.MaxLeafPrims = MinPrimsPerNode
	}

	return &Builder{
		logger: log.New("bvh builder"),
		opts:   opts,
	}
}

// Get the builder options.
func (b *Builder) Options() Options {
	return b.opts
}

// Compile the builder and scan kernels. The work-group size is clamped to the
// smallest limit reported for any of the compiled kernels.
func (b *Builder) Init(ctx *device.Context) error {
	if b.kernels != nil {
		return nil
	}
	if !ctx.Ready() {
		return fmt.Errorf("bvh builder: %w", device.ErrNotReady)
	}

	names := make([]string, numKernels)
	for kt := kernelType(0); kt < numKernels; kt++ {
		names[kt] = kt.String()
	}

	ids, err := ctx.BuildFunctions(Program, names...)
	if err != nil {
		return fmt.Errorf("bvh builder: %w", err)
	}

	wgSize := b.opts.WorkGroupSize
	if limit := ctx.MaxWorkGroupSize(ids...); limit < wgSize {
		wgSize = limit
	}
	b.scanner = scan.New(scan.Options{WorkGroupSize: wgSize})
	if err = b.scanner.Init(ctx); err != nil {
		for _, id := range ids {
			ctx.DeleteFunction(id)
		}
		return fmt.Errorf("bvh builder: %w", err)
	}

	b.ctx = ctx
	b.kernels = ids
	b.wgSize = b.scanner.BlockSize() >> 1
	if limit := ctx.MaxWorkGroupSize(ids...); b.wgSize > limit {
		b.Close()
		return fmt.Errorf("bvh builder: %w: %d", scan.ErrWorkGroupLimit, limit)
	}
	b.logger.Debugf("initialized %d kernels (work-group size %d, max leaf size %d)", len(ids), b.wgSize, b.opts.MaxLeafPrims)
	return nil
}

// Release the builder kernels.
func (b *Builder) Close() {
	if b.kernels == nil {
		return
	}
	for _, id := range b.kernels {
		b.ctx.DeleteFunction(id)
	}
	b.kernels = nil
	b.scanner.Close()
}

// Build a BVH for the given mesh and write it to the nodes buffer, which must
// hold MaxNodes(NumTriangles) nodes. Transient buffers are released before
// returning. On failure the contents of the node, index and material buffers
// are undefined.
func (b *Builder) Build(in Input, nodes device.MemoryID, queue int) (*Stats, error) {
	if b.kernels == nil {
		return nil, ErrNotInitialized
	}
	if err := b.checkInput(in, nodes); err != nil {
		return nil, err
	}

	bs := &buildState{
		Builder: b,
		in:      in,
		nodes:   nodes,
		queue:   queue,
		count:   in.NumTriangles,
		scratch: newScratchSet(b.ctx),
		stats: &Stats{
			Triangles:  in.NumTriangles,
			PhaseTimes: make(map[Phase]time.Duration),
		},
	}
	defer bs.scratch.releaseAll()

	phases := []func() error{
		PhasePrimitiveBBox: bs.buildPrimitiveBBoxes,
		PhaseMorton:        bs.encodeMortonCodes,
		PhaseSort:          bs.sortMortonCodes,
		PhaseRearrange:     bs.rearrangePrimitives,
		PhaseTreelets:      bs.emitTreelets,
		PhaseNodeBBox:      bs.buildNodeBBoxes,
	}

	start := time.Now()
	for phase, run := range phases {
		tick := time.Now()
		if err := run(); err != nil {
			return nil, fmt.Errorf("bvh builder: %s: %w", Phase(phase), err)
		}
		if err := b.ctx.FinishCommands(queue); err != nil {
			return nil, fmt.Errorf("bvh builder: %s: %w", Phase(phase), err)
		}
		bs.stats.PhaseTimes[Phase(phase)] = time.Since(tick)
		b.logger.Debugf("%s: %s", Phase(phase), bs.stats.PhaseTimes[Phase(phase)])
	}

	bs.stats.Nodes = bs.totalNodes
	bs.stats.Leaves = (bs.totalNodes + 1) / 2
	bs.stats.Total = time.Since(start)
	b.logger.Infof(
		"built BVH for %d triangles in %s (%d nodes, %d levels, %d sort passes)",
		bs.stats.Triangles, bs.stats.Total, bs.stats.Nodes, bs.stats.Levels, bs.stats.SortPasses,
	)
	return bs.stats, nil
}

func (b *Builder) checkInput(in Input, nodes device.MemoryID) error {
	n := in.NumTriangles
	if n <= 0 {
		return ErrEmptyMesh
	}

	if !b.ctx.Memory(in.Vertices).Valid() {
		return fmt.Errorf("bvh builder: vertex buffer: %w", device.ErrInvalidHandle)
	}
	if mem := b.ctx.Memory(in.Indices); !mem.Valid() || mem.Size() < 3*n*sizeofUint32 {
		return fmt.Errorf("%w: index buffer needs %d bytes; got %d", ErrInputTooSmall, 3*n*sizeofUint32, mem.Size())
	}
	if mem := b.ctx.Memory(in.Materials); !mem.Valid() || mem.Size() < n*sizeofUint32 {
		return fmt.Errorf("%w: material buffer needs %d bytes; got %d", ErrInputTooSmall, n*sizeofUint32, mem.Size())
	}
	if mem := b.ctx.Memory(nodes); !mem.Valid() || mem.Size() < MaxNodes(n)*sizeofNode {
		return fmt.Errorf("%w: need %d bytes; got %d", ErrNodeBufferTooSmall, MaxNodes(n)*sizeofNode, mem.Size())
	}
	return nil
}
