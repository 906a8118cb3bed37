package bvh

import (
	"errors"
	"testing"

	"github.com/achilleasa/clbvh/types"
)

func validTree() []Node {
	box := func(lo, hi float32) (types.Vec4, types.Vec4) {
		return types.XYZW(lo, lo, lo, 0), types.XYZW(hi, hi, hi, 0)
	}

	nodes := []Node{
		{Left: 1, Right: 2, Parent: InvalidIndex},
		{Left: 0, Right: 2, Parent: 0, Level: 1, Leaf: 1},
		{Left: 2, Right: 3, Parent: 0, Level: 1, Leaf: 1},
	}
	nodes[0].Min, nodes[0].Max = box(0, 4)
	nodes[1].Min, nodes[1].Max = box(0, 2)
	nodes[2].Min, nodes[2].Max = box(2, 4)
	return nodes
}

func TestValidate(t *testing.T) {
	if err := Validate(validTree(), 3); err != nil {
		t.Fatalf("expected tree to be valid; got %v", err)
	}

	// An empty scene is a single empty leaf
	if err := Validate([]Node{{Parent: InvalidIndex, Leaf: 1}}, 0); err != nil {
		t.Fatalf("expected empty leaf root to be valid; got %v", err)
	}

	specs := map[string]func(nodes []Node) ([]Node, int){
		"no nodes": func([]Node) ([]Node, int) { return nil, 3 },
		"root parent": func(nodes []Node) ([]Node, int) {
			nodes[0].Parent = 1
			return nodes, 3
		},
		"bad child parent": func(nodes []Node) ([]Node, int) {
			nodes[2].Parent = 1
			return nodes, 3
		},
		"child out of range": func(nodes []Node) ([]Node, int) {
			nodes[0].Right = 7
			return nodes, 3
		},
		"unreachable node": func(nodes []Node) ([]Node, int) {
			return append(nodes, Node{Leaf: 1}), 3
		},
		"overlapping leaves": func(nodes []Node) ([]Node, int) {
			nodes[2].Left = 1
			return nodes, 3
		},
		"uncovered primitive": func(nodes []Node) ([]Node, int) {
			return nodes, 4
		},
		"empty leaf": func(nodes []Node) ([]Node, int) {
			nodes[1].Right = 0
			return nodes, 3
		},
		"bbox not contained": func(nodes []Node) ([]Node, int) {
			nodes[2].Max[1] = 5
			return nodes, 3
		},
		"bad level": func(nodes []Node) ([]Node, int) {
			nodes[1].Level = 2
			return nodes, 3
		},
	}

	for name, mutate := range specs {
		nodes, n := mutate(validTree())
		if err := Validate(nodes, n); !errors.Is(err, ErrInvalidTree) {
			t.Fatalf("[%s] expected ErrInvalidTree; got %v", name, err)
		}
	}
}
