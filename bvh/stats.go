package bvh

import (
	"time"
)

// Phase identifies a stage of the build pipeline.
type Phase uint8

// Build phases in execution order.
const (
	PhasePrimitiveBBox Phase = iota
	PhaseMorton
	PhaseSort
	PhaseRearrange
	PhaseTreelets
	PhaseNodeBBox
	//
	NumPhases
)

func (p Phase) String() string {
	switch p {
	case PhasePrimitiveBBox:
		return "primitive bbox"
	case PhaseMorton:
		return "morton codes"
	case PhaseSort:
		return "morton sort"
	case PhaseRearrange:
		return "rearrange"
	case PhaseTreelets:
		return "treelets"
	case PhaseNodeBBox:
		return "node bbox"
	}

	panic("unsupported phase")
}

// Stats describes a completed build.
type Stats struct {
	Triangles int
	Nodes     int
	Leaves    int

	// Number of treelet levels processed.
	Levels int

	// Number of bitonic sort dispatches.
	SortPasses int

	PhaseTimes map[Phase]time.Duration
	Total      time.Duration
}
