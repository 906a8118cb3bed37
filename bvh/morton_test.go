package bvh

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/types"
)

func TestMortonCode(t *testing.T) {
	bbox := types.BBox{Min: types.XYZ(-1, -1, -1), Max: types.XYZ(1, 1, 1)}

	specs := []struct {
		p   types.Vec3
		exp uint32
	}{
		{types.XYZ(-1, -1, -1), 0},
		{types.XYZ(1, 1, 1), 0x3FFFFFFF},
		{types.XYZ(1, -1, -1), 0x24924924},
		{types.XYZ(-1, 1, -1), 0x12492492},
		{types.XYZ(-1, -1, 1), 0x09249249},
		// points outside the box are clamped
		{types.XYZ(-5, 5, -5), 0x12492492},
	}

	for index, spec := range specs {
		code := MortonCode(spec.p, bbox)
		if code != spec.exp {
			t.Fatalf("[spec %d] expected code 0x%08x; got 0x%08x", index, spec.exp, code)
		}
	}

	// Flat boxes quantize the collapsed axis to 0
	flat := types.BBox{Min: types.XYZ(0, 0, 0), Max: types.XYZ(1, 0, 1)}
	if code := MortonCode(types.XYZ(1, 0, 1), flat); code != 0x24924924|0x09249249 {
		t.Fatalf("expected code 0x%08x; got 0x%08x", 0x24924924|0x09249249, code)
	}
}

func TestWindowShift(t *testing.T) {
	if shift := windowShift(0); shift != 27 {
		t.Fatalf("expected level 0 shift to be 27; got %d", shift)
	}
	if shift := windowShift(NumLevels - 1); shift != 0 {
		t.Fatalf("expected last level shift to be 0; got %d", shift)
	}

	code := MortonCode(types.XYZ(1, -1, -1), types.BBox{Min: types.XYZ(-1, -1, -1), Max: types.XYZ(1, 1, 1)})
	for level := 0; level < NumLevels; level++ {
		if w := window(code, windowShift(level)); w != 4 {
			t.Fatalf("[level %d] expected window 4; got %d", level, w)
		}
	}
}

func TestBitonicSchedule(t *testing.T) {
	if passes := BitonicSchedule(1); len(passes) != 0 {
		t.Fatalf("expected no passes for a single element; got %d", len(passes))
	}

	expPasses := []SortPass{
		{Kernel: "morton_sort_g2", Inc: 1, Dir: 2, Threads: 16},
		{Kernel: "morton_sort_g4", Inc: 2, Dir: 4, Threads: 8},
		{Kernel: "morton_sort_g8", Inc: 4, Dir: 8, Threads: 4},
		{Kernel: "morton_sort_g16", Inc: 8, Dir: 16, Threads: 2},
		{Kernel: "morton_sort_g16", Inc: 16, Dir: 32, Threads: 2},
		{Kernel: "morton_sort_g2", Inc: 1, Dir: 32, Threads: 16},
	}

	// 17..32 elements share the same padded size
	for _, n := range []int{17, 32} {
		passes := BitonicSchedule(n)
		if len(passes) != len(expPasses) {
			t.Fatalf("[n=%d] expected %d passes; got %d", n, len(expPasses), len(passes))
		}
		for index, exp := range expPasses {
			got := passes[index]
			if got.Kernel != exp.Kernel || got.Inc != exp.Inc || got.Dir != exp.Dir || got.Threads != exp.Threads {
				t.Fatalf("[n=%d] expected pass %d to be %+v; got %+v", n, index, exp, got)
			}
		}
	}

	// Every network level is covered exactly once
	for _, n := range []int{2, 3, 100, 1 << 12} {
		size := sortSize(n)
		levels := 0
		for length := 1; length < size; length <<= 1 {
			for inc := length; inc > 0; inc >>= 1 {
				levels++
			}
		}

		covered := 0
		for _, pass := range BitonicSchedule(n) {
			covered += pass.levels
		}
		if covered != levels {
			t.Fatalf("[n=%d] expected schedule to cover %d levels; got %d", n, levels, covered)
		}
	}
}

func TestMortonSort(t *testing.T) {
	ctx, b := newTestBuilder(t, Options{WorkGroupSize: 4})
	defer ctx.Close()
	defer b.Close()

	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 2, 3, 5, 16, 17, 100, 1000} {
		padded := sortSize(n)
		codes := make([]uint32, padded)
		perm := make([]uint32, padded)
		for i := range codes {
			perm[i] = uint32(i)
			codes[i] = sortPaddingKey
			if i < n {
				// Narrow key range to force duplicates
				codes[i] = uint32(rng.Intn(64))
			}
		}

		bs := &buildState{
			Builder: b,
			count:   n,
			scratch: newScratchSet(ctx),
			stats:   &Stats{},
		}
		bs.codes = uploadTestData(t, ctx, codes)
		bs.perm = uploadTestData(t, ctx, perm)

		if err := bs.sortMortonCodes(); err != nil {
			t.Fatalf("[n=%d] sort failed: %v", n, err)
		}
		if bs.stats.SortPasses != len(BitonicSchedule(n)) {
			t.Fatalf("[n=%d] expected %d sort passes; got %d", n, len(BitonicSchedule(n)), bs.stats.SortPasses)
		}

		sortedCodes := make([]uint32, padded)
		sortedPerm := make([]uint32, padded)
		if err := ctx.Memory(bs.codes).Read(0, 0, sortedCodes); err != nil {
			t.Fatal(err)
		}
		if err := ctx.Memory(bs.perm).Read(0, 0, sortedPerm); err != nil {
			t.Fatal(err)
		}

		if !sort.SliceIsSorted(sortedCodes, func(i, j int) bool { return sortedCodes[i] < sortedCodes[j] }) {
			t.Fatalf("[n=%d] expected sorted codes; got %v", n, sortedCodes)
		}

		seen := make([]bool, padded)
		for i, p := range sortedPerm {
			if seen[p] {
				t.Fatalf("[n=%d] permutation references %d twice", n, p)
			}
			seen[p] = true
			if sortedCodes[i] != codes[p] {
				t.Fatalf("[n=%d] expected code at %d to match input %d (0x%x); got 0x%x", n, i, p, codes[p], sortedCodes[i])
			}
		}

		ctx.DeleteMemory(bs.codes)
		ctx.DeleteMemory(bs.perm)
	}
}

func uploadTestData(t *testing.T, ctx *device.Context, data interface{}) device.MemoryID {
	id := ctx.NewMemory()
	if err := ctx.Memory(id).InitializeWithData(data, device.ReadWrite); err != nil {
		t.Fatal(err)
	}
	return id
}
