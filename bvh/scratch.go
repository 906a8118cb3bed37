package bvh

import (
	"github.com/achilleasa/clbvh/device"
)

// A set of transient device buffers owned by a single build.
type scratchSet struct {
	ctx *device.Context
	ids []device.MemoryID
}

func newScratchSet(ctx *device.Context) *scratchSet {
	return &scratchSet{ctx: ctx}
}

// Allocate a zeroed read-write buffer of the given size.
func (s *scratchSet) alloc(size int) (device.MemoryID, error) {
	id := s.ctx.NewMemory()
	if id == device.InvalidMemory {
		return id, device.ErrNotReady
	}
	s.ids = append(s.ids, id)

	if err := s.ctx.Memory(id).Initialize(size, device.ReadWrite); err != nil {
		return device.InvalidMemory, err
	}
	return id, nil
}

// Release a single buffer.
func (s *scratchSet) release(id device.MemoryID) {
	for idx, owned := range s.ids {
		if owned == id {
			s.ids = append(s.ids[:idx], s.ids[idx+1:]...)
			s.ctx.DeleteMemory(id)
			return
		}
	}
}

// Release all buffers in the set.
func (s *scratchSet) releaseAll() {
	for _, id := range s.ids {
		s.ctx.DeleteMemory(id)
	}
	s.ids = nil
}
