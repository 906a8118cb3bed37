package bvh

import (
	"github.com/achilleasa/clbvh/types"
)

// Expand the low 10 bits of v so that there are two zero bits between each
// original bit.
func expandBits(v uint32) uint32 {
	v &= 0x3FF
	v = (v | (v << 16)) & 0x030000FF
	v = (v | (v << 8)) & 0x0300F00F
	v = (v | (v << 4)) & 0x030C30C3
	v = (v | (v << 2)) & 0x09249249
	return v
}

func quantize(v, lo, extent float32) uint32 {
	if extent <= 0 {
		return 0
	}
	q := (v - lo) / extent * 1024
	if q < 0 {
		return 0
	} else if q > 1023 {
		return 1023
	}
	return uint32(q)
}

// Get the 30-bit morton code of a point normalized against the given box.
// Bits are interleaved as x, y, z from the most significant end.
func MortonCode(p types.Vec3, bbox types.BBox) uint32 {
	extent := bbox.Extent()
	x := expandBits(quantize(p[0], bbox.Min[0], extent[0]))
	y := expandBits(quantize(p[1], bbox.Min[1], extent[1]))
	z := expandBits(quantize(p[2], bbox.Min[2], extent[2]))
	return x<<2 | y<<1 | z
}

// The shift that extracts the 3-bit code window inspected at a level.
func windowShift(level int) uint32 {
	return uint32(MortonBits - BitsPerLevel*(level+1))
}

func window(code, shift uint32) uint32 {
	return (code >> shift) & windowMask
}

// SortPass is a single dispatch of the bitonic sort network.
type SortPass struct {
	// Kernel entry point.
	Kernel string

	// Compare-exchange stride of the first level processed by the pass.
	Inc int

	// Direction mask; elements with (i & Dir) == 0 sort ascending.
	Dir int

	// Number of threads.
	Threads int

	kernel kernelType
	levels int
}

// Get the padded sort size for n elements.
func sortSize(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// Get the dispatch plan of a bitonic sort over n elements. The input is
// padded to the next power of two. Each pass handles up to 4 levels of the
// network; the widest kernel that fits the remaining stride is used.
func BitonicSchedule(n int) []SortPass {
	size := sortSize(n)

	var passes []SortPass
	for length := 1; length < size; length <<= 1 {
		dir := length << 1
		for inc := length; inc > 0; {
			pass := SortPass{Inc: inc, Dir: dir}
			switch {
			case inc >= 8:
				pass.kernel, pass.levels = mortonSortG16, 4
			case inc >= 4:
				pass.kernel, pass.levels = mortonSortG8, 3
			case inc >= 2:
				pass.kernel, pass.levels = mortonSortG4, 2
			default:
				pass.kernel, pass.levels = mortonSortG2, 1
			}
			pass.Kernel = pass.kernel.String()
			pass.Threads = size >> uint(pass.levels)
			passes = append(passes, pass)

			inc >>= uint(pass.levels)
		}
	}
	return passes
}
