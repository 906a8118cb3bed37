// Package scan implements an exclusive prefix sum over device buffers of
// uint32 values using a recursive block scan.
package scan

import (
	"errors"
	"fmt"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/log"
)

const sizeofUint32 = 4

// Smallest supported work-group size. Blocks must hold at least 4 values so
// that every recursion level shrinks the block sum array.
const MinWorkGroupSize = 2

var (
	ErrNotInitialized = errors.New("scan: scanner not initialized")
	ErrOutputTooSmall = errors.New("scan: output buffer cannot hold count+1 values")
	ErrInputTooSmall  = errors.New("scan: input buffer cannot hold count values")
	ErrWorkGroupLimit = errors.New("scan: device work-group limit below the minimum scan work-group size")
)

// Options for the scanner.
type Options struct {
	// Number of work items per work-group. Each work-group scans a block of
	// twice as many elements. The value is rounded down to a power of two,
	// clamped to the limit of the scan kernels and raised to
	// MinWorkGroupSize.
	WorkGroupSize int
}

// Default scanner options.
func DefaultOptions() Options {
	return Options{WorkGroupSize: 128}
}

// Scanner computes exclusive prefix sums on a device context.
type Scanner struct {
	logger log.Logger
	opts   Options
	ctx    *device.Context

	wgSize  int
	kernels []device.FunctionID
}

// Create a new scanner. Init must be called before use.
func New(opts Options) *Scanner {
	if opts.WorkGroupSize <= 0 {
		opts.WorkGroupSize = DefaultOptions().WorkGroupSize
	}
	return &Scanner{
		logger: log.New("scan"),
		opts:   opts,
	}
}

// Compile the scan kernels on the given context.
func (s *Scanner) Init(ctx *device.Context) error {
	if s.kernels != nil {
		return nil
	}
	if !ctx.Ready() {
		return device.ErrNotReady
	}

	names := make([]string, numKernels)
	for kt := kernelType(0); kt < numKernels; kt++ {
		names[kt] = kt.String()
	}

	ids, err := ctx.BuildFunctions(Program, names...)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	limit := ctx.MaxWorkGroupSize(ids...)
	if limit < MinWorkGroupSize {
		for _, id := range ids {
			ctx.DeleteFunction(id)
		}
		return fmt.Errorf("%w: %d", ErrWorkGroupLimit, limit)
	}

	s.ctx = ctx
	s.kernels = ids
	s.wgSize = clampWorkGroupSize(s.opts.WorkGroupSize, limit)
	s.logger.Debugf("initialized with work-group size %d (block size %d)", s.wgSize, s.BlockSize())
	return nil
}

// Release the scan kernels.
func (s *Scanner) Close() {
	for _, id := range s.kernels {
		s.ctx.DeleteFunction(id)
	}
	s.kernels = nil
}

// Number of elements scanned by a single work-group.
func (s *Scanner) BlockSize() int {
	return s.wgSize << 1
}

// Get the number of recursive scan levels needed for count elements. A level
// count of 1 means no auxiliary buffers are allocated.
func (s *Scanner) Levels(count int) int {
	block := s.BlockSize()
	levels := 1
	for blocks := numBlocks(count, block); blocks > 1; blocks = numBlocks(blocks, block) {
		levels++
	}
	return levels
}

// Write the exclusive prefix sum of the first count values of in to out so
// that out[0] = 0, out[i] = in[0] + ... + in[i-1] and out[count] holds the
// total. in and out may refer to the same buffer. The call only enqueues
// work on the given queue.
func (s *Scanner) Scan(in device.MemoryID, count int, out device.MemoryID, queue int) error {
	if s.kernels == nil {
		return ErrNotInitialized
	}

	inMem, outMem := s.ctx.Memory(in), s.ctx.Memory(out)
	if !inMem.Valid() || !outMem.Valid() {
		return fmt.Errorf("scan: %w", device.ErrInvalidHandle)
	}
	if inMem.Size() < count*sizeofUint32 {
		return fmt.Errorf("%w: %d bytes for %d values", ErrInputTooSmall, inMem.Size(), count)
	}
	if outMem.Size() < (count+1)*sizeofUint32 {
		return fmt.Errorf("%w: %d bytes for %d values", ErrOutputTooSmall, outMem.Size(), count)
	}

	return s.scan(in, count, out, queue, 0)
}

func (s *Scanner) scan(in device.MemoryID, count int, out device.MemoryID, queue, depth int) error {
	block := s.BlockSize()
	blocks := numBlocks(count, block)

	if blocks == 1 {
		// The output buffer doubles as a dummy block sum target.
		return s.scanBlocks(in, count, out, out, false, 1, queue)
	}

	s.logger.Debugf("level %d: scanning %d values in %d blocks", depth, count, blocks)

	auxID := s.ctx.NewMemory()
	defer s.ctx.DeleteMemory(auxID)
	if err := s.ctx.Memory(auxID).Initialize((blocks+1)*sizeofUint32, device.ReadWrite); err != nil {
		return fmt.Errorf("scan: could not allocate block sums for %d blocks: %w", blocks, err)
	}

	if err := s.scanBlocks(in, count, out, auxID, true, blocks, queue); err != nil {
		return err
	}
	if err := s.ctx.EnqueueBarrier(queue); err != nil {
		return err
	}
	if err := s.scan(auxID, blocks, auxID, queue, depth+1); err != nil {
		return err
	}
	if err := s.ctx.EnqueueBarrier(queue); err != nil {
		return err
	}

	fn := s.ctx.Function(s.kernels[scanAddBlockSums])
	if err := fn.SetArgs(out, auxID, uint32(count)); err != nil {
		return err
	}
	return fn.Exec1D(queue, 0, blocks*s.wgSize, s.wgSize)
}

func (s *Scanner) scanBlocks(in device.MemoryID, count int, out, sums device.MemoryID, writeSums bool, blocks, queue int) error {
	var writeSumsFlag uint32
	if writeSums {
		writeSumsFlag = 1
	}

	fn := s.ctx.Function(s.kernels[scanLocal])
	err := fn.SetArgs(
		in,
		out,
		sums,
		uint32(count),
		writeSumsFlag,
		device.Local(s.BlockSize()*sizeofUint32),
	)
	if err != nil {
		return err
	}
	return fn.Exec1D(queue, 0, blocks*s.wgSize, s.wgSize)
}

// Set the first count values of a uint32 buffer to value.
func (s *Scanner) Fill(id device.MemoryID, count int, value uint32, queue int) error {
	if s.kernels == nil {
		return ErrNotInitialized
	}
	if count == 0 {
		return nil
	}
	if mem := s.ctx.Memory(id); mem.Size() < count*sizeofUint32 {
		return fmt.Errorf("scan: fill of %d values exceeds buffer %d size %d", count, id, mem.Size())
	}

	fn := s.ctx.Function(s.kernels[fillUint])
	if err := fn.SetArgs(id, uint32(count), value); err != nil {
		return err
	}
	return fn.Exec1D(queue, 0, roundUp(count, s.wgSize), s.wgSize)
}

// Number of blocks needed to write count+1 output values.
func numBlocks(count, block int) int {
	return (count + block) / block
}

func roundUp(n, multiple int) int {
	return ((n + multiple - 1) / multiple) * multiple
}

// Round size down to a power of two in [MinWorkGroupSize, limit].
func clampWorkGroupSize(size, limit int) int {
	if size > limit {
		size = limit
	}
	pow := MinWorkGroupSize
	for pow*2 <= size {
		pow *= 2
	}
	return pow
}
