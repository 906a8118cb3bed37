package scan

import (
	_ "embed"

	"github.com/achilleasa/clbvh/device"
)

//go:embed CL/scan.cl
var scanSource string

// Program holds the scan kernels. Other packages append its source to their
// own programs when they need the fill helper on the device.
var Program = &device.Program{
	Name:   "scan",
	Source: scanSource,
	Host: map[string]device.HostKernel{
		scanLocal.String():        {Args: 6, Run: hostScanLocal},
		scanAddBlockSums.String(): {Args: 3, Run: hostScanAddBlockSums},
		fillUint.String():         {Args: 3, Run: hostFillUint},
	},
}

func hostScanLocal(wg *device.WorkGroup) error {
	in, out, sums := wg.Uint32s(0), wg.Uint32s(1), wg.Uint32s(2)
	count := int(wg.Uint32(3))
	writeSums := wg.Uint32(4) != 0
	tmp := wg.Uint32s(5)

	size := wg.Size()
	n := size << 1
	base := wg.Group[0] * n

	for lid := 0; lid < n; lid++ {
		tmp[lid] = 0
		if base+lid < count {
			tmp[lid] = in[base+lid]
		}
	}

	offset := 1
	for d := n >> 1; d > 0; d >>= 1 {
		for lid := 0; lid < d; lid++ {
			a := offset*(2*lid+1) - 1
			b := offset*(2*lid+2) - 1
			tmp[b] += tmp[a]
		}
		offset <<= 1
	}

	if writeSums {
		sums[wg.Group[0]] = tmp[n-1]
	}
	tmp[n-1] = 0

	for d := 1; d < n; d <<= 1 {
		offset >>= 1
		for lid := 0; lid < d; lid++ {
			a := offset*(2*lid+1) - 1
			b := offset*(2*lid+2) - 1
			tmp[a], tmp[b] = tmp[b], tmp[b]+tmp[a]
		}
	}

	for lid := 0; lid < n; lid++ {
		if base+lid <= count {
			out[base+lid] = tmp[lid]
		}
	}
	return nil
}

func hostScanAddBlockSums(wg *device.WorkGroup) error {
	out, sums := wg.Uint32s(0), wg.Uint32s(1)
	count := int(wg.Uint32(2))

	n := wg.Size() << 1
	base := wg.Group[0] * n
	sum := sums[wg.Group[0]]
	for lid := 0; lid < n; lid++ {
		if base+lid <= count {
			out[base+lid] += sum
		}
	}
	return nil
}

func hostFillUint(wg *device.WorkGroup) error {
	buf := wg.Uint32s(0)
	count := int(wg.Uint32(1))
	value := wg.Uint32(2)
	for lid := 0; lid < wg.Size(); lid++ {
		if gid := wg.GlobalID(lid); gid < count {
			buf[gid] = value
		}
	}
	return nil
}
