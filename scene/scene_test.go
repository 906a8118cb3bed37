package scene

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/achilleasa/clbvh/bvh"
	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/device/emulator"
	"github.com/achilleasa/clbvh/types"
)

func newTestScene(t *testing.T) (*device.Context, *bvh.Builder, *Scene) {
	ctx := device.NewContext()
	if err := ctx.Initialize(emulator.New(emulator.Config{})); err != nil {
		t.Fatal(err)
	}

	b := bvh.NewBuilder(bvh.Options{WorkGroupSize: 16})
	if err := b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	return ctx, b, New(ctx)
}

func TestVertexLayout(t *testing.T) {
	if size := unsafe.Sizeof(Vertex{}); size != sizeofVertex {
		t.Fatalf("expected vertex size to be %d; got %d", sizeofVertex, size)
	}
	if offset := unsafe.Offsetof(Vertex{}.Position); offset != 0 {
		t.Fatalf("expected position to be the first vertex field; got offset %d", offset)
	}
}

func TestBuildBVH(t *testing.T) {
	ctx, b, sc := newTestScene(t)
	defer ctx.Close()

	for _, layout := range []Layout{LayoutRandom, LayoutGrid} {
		m := GenerateMesh(layout, 700, 9)
		if err := sc.Upload(m); err != nil {
			t.Fatal(err)
		}
		if sc.BvhBuilt || sc.BvhOnDevice {
			t.Fatalf("[%s] expected bvh flags to be cleared after upload", layout)
		}

		stats, err := sc.BuildBVH(b, 0)
		if err != nil {
			t.Fatalf("[%s] build failed: %v", layout, err)
		}
		if !sc.BvhBuilt || !sc.BvhOnDevice {
			t.Fatalf("[%s] expected bvh flags to be set after build", layout)
		}

		nodes, err := sc.Nodes()
		if err != nil {
			t.Fatal(err)
		}
		if len(nodes) != stats.Nodes {
			t.Fatalf("[%s] expected %d nodes; got %d", layout, stats.Nodes, len(nodes))
		}
		if err = bvh.Validate(nodes, m.NumTriangles()); err != nil {
			t.Fatalf("[%s] %v", layout, err)
		}

		tris, err := sc.Triangles()
		if err != nil {
			t.Fatal(err)
		}
		if len(tris) != m.NumTriangles() {
			t.Fatalf("[%s] expected %d triangles; got %d", layout, m.NumTriangles(), len(tris))
		}

		// The root box covers the whole mesh
		if root := nodes[0].BBox(); root != m.BBox() {
			t.Fatalf("[%s] expected root bbox %v; got %v", layout, m.BBox(), root)
		}
	}
}

func TestBuildDegenerateMesh(t *testing.T) {
	ctx, b, sc := newTestScene(t)
	defer ctx.Close()

	m := GenerateMesh(LayoutDegenerate, 64, 0)
	if err := sc.Upload(m); err != nil {
		t.Fatal(err)
	}
	if _, err := sc.BuildBVH(b, 0); err != nil {
		t.Fatal(err)
	}

	nodes, err := sc.Nodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || !nodes[0].IsLeaf() || nodes[0].NumPrimitives() != 64 {
		t.Fatalf("expected a single leaf holding all primitives; got %+v", nodes)
	}
}

func TestBuildEmptyMesh(t *testing.T) {
	ctx, b, sc := newTestScene(t)
	defer ctx.Close()

	if err := sc.Upload(&Mesh{}); err != nil {
		t.Fatal(err)
	}
	stats, err := sc.BuildBVH(b, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Nodes != 1 || !sc.BvhBuilt {
		t.Fatalf("expected a single node build; got %+v", stats)
	}

	nodes, err := sc.Nodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || !nodes[0].IsLeaf() || nodes[0].NumPrimitives() != 0 || nodes[0].Parent != bvh.InvalidIndex {
		t.Fatalf("expected an empty leaf root; got %+v", nodes)
	}
	if !nodes[0].BBox().IsEmpty() {
		t.Fatalf("expected root bbox to be empty; got %v", nodes[0].BBox())
	}
	if err = bvh.Validate(nodes, 0); err != nil {
		t.Fatal(err)
	}
}

func TestMaterialsFollowTriangles(t *testing.T) {
	ctx, b, sc := newTestScene(t)
	defer ctx.Close()

	m := GenerateMesh(LayoutRandom, 300, 4)
	for i := range m.Materials {
		m.Materials[i] = uint32(i)
	}
	if err := sc.Upload(m); err != nil {
		t.Fatal(err)
	}
	if _, err := sc.BuildBVH(b, 0); err != nil {
		t.Fatal(err)
	}

	tris, err := sc.Triangles()
	if err != nil {
		t.Fatal(err)
	}
	materials, err := sc.Materials()
	if err != nil {
		t.Fatal(err)
	}
	for prim, mat := range materials {
		if tris[prim] != m.Triangles[mat] {
			t.Fatalf("expected primitive %d to hold triangle %d (%v); got %v", prim, mat, m.Triangles[mat], tris[prim])
		}
	}
}

func TestUploadErrors(t *testing.T) {
	ctx, _, sc := newTestScene(t)
	defer ctx.Close()

	bad := &Mesh{
		Vertices:  []Vertex{newVertex(types.XYZ(0, 0, 0), 0, 0)},
		Triangles: []Triangle{{0, 0, 1}},
	}
	if err := sc.Upload(bad); !errors.Is(err, ErrInvalidMesh) {
		t.Fatalf("expected ErrInvalidMesh; got %v", err)
	}

	bad = GenerateMesh(LayoutRandom, 4, 1)
	bad.Materials = bad.Materials[:2]
	if err := sc.Upload(bad); !errors.Is(err, ErrInvalidMesh) {
		t.Fatalf("expected ErrInvalidMesh; got %v", err)
	}

	if _, err := sc.Nodes(); err == nil {
		t.Fatal("expected an error reading nodes before building a bvh")
	}
}

func TestRelease(t *testing.T) {
	ctx, _, sc := newTestScene(t)
	defer ctx.Close()

	baseline := ctx.Stats().Live
	if err := sc.Upload(GenerateMesh(LayoutGrid, 10, 0)); err != nil {
		t.Fatal(err)
	}
	if live := ctx.Stats().Live; live != baseline+4 {
		t.Fatalf("expected 4 scene allocations; got %d", live-baseline)
	}
	if sc.DeviceBytes() == 0 {
		t.Fatal("expected scene to hold device memory")
	}

	sc.Release()
	if live := ctx.Stats().Live; live != baseline {
		t.Fatalf("expected scene buffers to be released; %d allocations still live", live-baseline)
	}
	if ctx.Memory(sc.NodeBuffer()).Valid() {
		t.Fatal("expected node buffer handle to be invalid after release")
	}
}

func TestGenerateMesh(t *testing.T) {
	for _, layout := range []Layout{LayoutRandom, LayoutGrid, LayoutDegenerate} {
		for _, n := range []int{0, 1, 5, 128} {
			m := GenerateMesh(layout, n, 3)
			if m.NumTriangles() != n || len(m.Materials) != n {
				t.Fatalf("[%s] expected %d triangles and materials; got %d and %d", layout, n, m.NumTriangles(), len(m.Materials))
			}
			if err := m.Validate(); err != nil {
				t.Fatalf("[%s] %v", layout, err)
			}
		}
	}

	a, b := GenerateMesh(LayoutRandom, 50, 8), GenerateMesh(LayoutRandom, 50, 8)
	for i := range a.Vertices {
		if a.Vertices[i] != b.Vertices[i] {
			t.Fatalf("expected generated vertex %d to match for the same seed", i)
		}
	}

	for _, name := range []string{"random", "grid", "degenerate"} {
		layout, err := ParseLayout(name)
		if err != nil || layout.String() != name {
			t.Fatalf("expected to parse layout %q; got %v, %v", name, layout, err)
		}
	}
	if _, err := ParseLayout("spiral"); err == nil {
		t.Fatal("expected an error for an unknown layout")
	}
}
