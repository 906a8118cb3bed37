//go:build opencl

package opencl

import (
	"testing"

	"github.com/achilleasa/clbvh/device"
)

var squareProgram = &device.Program{
	Name: "square",
	Source: `
__kernel void square(__global const int *in, __global int *out, const uint count){
	uint gid = get_global_id(0);
	if (gid < count) out[gid] = in[gid] * in[gid];
}
`,
}

func TestSquareKernel(t *testing.T) {
	dev, err := SelectDevice(AllDevices, "")
	if err != nil {
		t.Skipf("no opencl device available: %v", err)
	}

	backend, err := New(dev, 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx := device.NewContext()
	if err = ctx.Initialize(backend); err != nil {
		t.Fatal(err)
	}
	defer ctx.Close()

	ids, err := ctx.BuildFunctions(squareProgram, "square")
	if err != nil {
		t.Fatal(err)
	}

	dataSize := 32
	dataIn := make([]int32, dataSize)
	for i := range dataIn {
		dataIn[i] = int32(i)
	}
	in := ctx.Memory(ctx.NewMemory())
	if err = in.InitializeWithData(dataIn, device.ReadOnly); err != nil {
		t.Fatal(err)
	}
	out := ctx.Memory(ctx.NewMemory())
	if err = out.Initialize(dataSize*4, device.WriteOnly); err != nil {
		t.Fatal(err)
	}

	fn := ctx.Function(ids[0])
	if err = fn.SetArgs(in, out, uint32(dataSize)); err != nil {
		t.Fatal(err)
	}
	if err = fn.Exec1D(0, 0, dataSize, 0); err != nil {
		t.Fatal(err)
	}

	dataOut := make([]int32, dataSize)
	if err = out.Read(0, 0, dataOut); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < dataSize; i++ {
		if expValue := dataIn[i] * dataIn[i]; dataOut[i] != expValue {
			t.Fatalf("[item %d] expected squared value of %d to be %d; got %d", i, dataIn[i], expValue, dataOut[i])
		}
	}
}
