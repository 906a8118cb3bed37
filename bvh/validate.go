package bvh

import (
	"errors"
	"fmt"
)

var ErrInvalidTree = errors.New("bvh: invalid tree")

// Validate checks the structure of a node array built for numTriangles
// primitives. Every node must be reachable from the root exactly once, child
// and parent links must agree, leaf ranges must partition [0, numTriangles)
// and each internal node box must contain the boxes of its children.
func Validate(nodes []Node, numTriangles int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("%w: no root node", ErrInvalidTree)
	}
	if nodes[0].Parent != InvalidIndex {
		return fmt.Errorf("%w: root parent is %d", ErrInvalidTree, nodes[0].Parent)
	}
	if nodes[0].Level != 0 {
		return fmt.Errorf("%w: root level is %d", ErrInvalidTree, nodes[0].Level)
	}

	visited := make([]bool, len(nodes))
	covered := make([]bool, numTriangles)
	queue := []uint32{0}
	visited[0] = true
	reached := 1

	for len(queue) > 0 {
		index := queue[0]
		queue = queue[1:]
		n := &nodes[index]

		if n.IsLeaf() {
			if n.Left > n.Right || (n.Left == n.Right && numTriangles > 0) || int(n.Right) > numTriangles {
				return fmt.Errorf("%w: leaf %d has range [%d, %d)", ErrInvalidTree, index, n.Left, n.Right)
			}
			for prim := n.Left; prim < n.Right; prim++ {
				if covered[prim] {
					return fmt.Errorf("%w: primitive %d referenced by more than one leaf", ErrInvalidTree, prim)
				}
				covered[prim] = true
			}
			continue
		}

		for _, child := range []uint32{n.Left, n.Right} {
			if int(child) >= len(nodes) {
				return fmt.Errorf("%w: node %d references child %d out of range", ErrInvalidTree, index, child)
			}
			if visited[child] {
				return fmt.Errorf("%w: node %d reached more than once", ErrInvalidTree, child)
			}
			c := &nodes[child]
			if c.Parent != index {
				return fmt.Errorf("%w: node %d has parent %d; expected %d", ErrInvalidTree, child, c.Parent, index)
			}
			if c.Level != n.Level+1 {
				return fmt.Errorf("%w: node %d has level %d; expected %d", ErrInvalidTree, child, c.Level, n.Level+1)
			}
			if !n.BBox().Contains(c.BBox()) {
				return fmt.Errorf("%w: node %d box does not contain child %d", ErrInvalidTree, index, child)
			}

			visited[child] = true
			reached++
			queue = append(queue, child)
		}
	}

	if reached != len(nodes) {
		return fmt.Errorf("%w: %d of %d nodes are unreachable", ErrInvalidTree, len(nodes)-reached, len(nodes))
	}
	for prim, ok := range covered {
		if !ok {
			return fmt.Errorf("%w: primitive %d is not referenced by any leaf", ErrInvalidTree, prim)
		}
	}
	return nil
}
