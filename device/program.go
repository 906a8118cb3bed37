package device

import (
	"fmt"

	"github.com/achilleasa/clbvh/types"
)

// Program is a named set of compute kernels. Source holds the OpenCL C code
// compiled by device backends; Host holds host replicas of the same kernels,
// keyed by entry point name, for backends that emulate a device.
type Program struct {
	Name   string
	Source string
	Host   map[string]HostKernel
}

// HostKernel is a host replica of a device kernel. Run is invoked once per
// work-group and must process every work item of the group. Kernels that
// read values written by other work-groups of the same dispatch must be
// marked Serial so that groups run one after the other.
type HostKernel struct {
	Args   int
	Run    func(wg *WorkGroup) error
	Serial bool
}

// WorkGroup describes a single work-group of a dispatch executed by a host
// kernel. Args holds the bound arguments: buffers and local scratch areas
// appear as byte slices and scalars keep their Go type.
type WorkGroup struct {
	Dims         int
	Group        [3]int
	NumGroups    [3]int
	LocalSize    [3]int
	GlobalSize   [3]int
	GlobalOffset [3]int

	Args []interface{}
}

// Get the number of work items in the group along dimension 0.
func (wg *WorkGroup) Size() int {
	return wg.LocalSize[0]
}

// Get the global id of the local work item lid along dimension 0.
func (wg *WorkGroup) GlobalID(lid int) int {
	return wg.GlobalOffset[0] + wg.Group[0]*wg.LocalSize[0] + lid
}

// Get the raw bytes of a buffer or local argument.
func (wg *WorkGroup) Bytes(index int) []byte {
	raw, ok := wg.Args[index].([]byte)
	if !ok {
		panic(fmt.Sprintf("device: arg %d is %T; expected a buffer", index, wg.Args[index]))
	}
	return raw
}

// Get a buffer or local argument as a uint32 slice.
func (wg *WorkGroup) Uint32s(index int) []uint32 {
	return View[uint32](wg.Bytes(index))
}

// Get a buffer or local argument as a float32 slice.
func (wg *WorkGroup) Float32s(index int) []float32 {
	return View[float32](wg.Bytes(index))
}

// Get a uint32 scalar argument.
func (wg *WorkGroup) Uint32(index int) uint32 {
	return wg.Args[index].(uint32)
}

// Get an int32 scalar argument.
func (wg *WorkGroup) Int32(index int) int32 {
	return wg.Args[index].(int32)
}

// Get a float32 scalar argument.
func (wg *WorkGroup) Float32(index int) float32 {
	return wg.Args[index].(float32)
}

// Get a Vec3 argument.
func (wg *WorkGroup) Vec3(index int) types.Vec3 {
	return wg.Args[index].(types.Vec3)
}

// Get a Vec4 argument.
func (wg *WorkGroup) Vec4(index int) types.Vec4 {
	return wg.Args[index].(types.Vec4)
}
