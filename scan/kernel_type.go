package scan

type kernelType uint8

// The list of kernels that implement the scan primitive.
const (
	scanLocal kernelType = iota
	scanAddBlockSums
	fillUint
	//
	numKernels
)

// Implements Stringer; map kernel type to the kernel name as defined in the CL source files.
func (kt kernelType) String() string {
	switch kt {
	case scanLocal:
		return "scan_local"
	case scanAddBlockSums:
		return "scan_add_block_sums"
	case fillUint:
		return "fill_uint"
	}

	panic("unsupported kernel type")
}
