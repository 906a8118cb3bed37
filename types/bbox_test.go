package types

import "testing"

func TestBBoxMerge(t *testing.T) {
	boxes := []BBox{
		EmptyBBox(),
		{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}},
		{Min: Vec3{-2, 0.5, 3}, Max: Vec3{-1, 4, 3}},
		{Min: Vec3{5, 5, 5}, Max: Vec3{5, 5, 5}},
	}

	for i, a := range boxes {
		if a.Merge(a) != a {
			t.Fatalf("[box %d] expected merge(a, a) to equal a; got %v", i, a.Merge(a))
		}
		for j, b := range boxes {
			if a.Merge(b) != b.Merge(a) {
				t.Fatalf("[box %d, %d] expected merge to be commutative; got %v and %v", i, j, a.Merge(b), b.Merge(a))
			}
			if !b.IsEmpty() && EmptyBBox().Merge(b) != b {
				t.Fatalf("[box %d] expected empty box to be dominated by merge", j)
			}
			m := a.Merge(b)
			if !m.Contains(a) || !m.Contains(b) {
				t.Fatalf("[box %d, %d] expected merged box %v to contain both inputs", i, j, m)
			}
		}
	}
}

func TestBBoxLargestAxis(t *testing.T) {
	specs := []struct {
		box     BBox
		expAxis Axis
	}{
		{BBox{Min: Vec3{0, 0, 0}, Max: Vec3{3, 1, 1}}, XAxis},
		{BBox{Min: Vec3{0, 0, 0}, Max: Vec3{1, 3, 1}}, YAxis},
		{BBox{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 3}}, ZAxis},
		// Ties resolve towards the lowest axis index
		{BBox{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}, XAxis},
		{BBox{Min: Vec3{0, 0, 0}, Max: Vec3{1, 2, 2}}, YAxis},
	}

	for idx, spec := range specs {
		if axis := spec.box.LargestAxis(); axis != spec.expAxis {
			t.Fatalf("[spec %d] expected largest axis to be %d; got %d", idx, spec.expAxis, axis)
		}
	}
}

func TestBBoxContains(t *testing.T) {
	outer := BBox{Min: Vec3{0, 0, 0}, Max: Vec3{2, 2, 2}}
	inner := TriangleBBox(Vec3{0.5, 0.5, 0.5}, Vec3{1, 1.5, 0.5}, Vec3{0.5, 1, 2})

	if !outer.Contains(inner) {
		t.Fatalf("expected %v to contain %v", outer, inner)
	}
	if inner.Contains(outer) {
		t.Fatalf("expected %v not to contain %v", inner, outer)
	}
	if !outer.Contains(EmptyBBox()) {
		t.Fatal("expected every box to contain the empty box")
	}

	expCenter := Vec3{1, 1, 1}
	if !ApproxEqual(outer.Center(), expCenter, 1e-6) {
		t.Fatalf("expected center %v; got %v", expCenter, outer.Center())
	}
}
