package device_test

import (
	"errors"
	"testing"

	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/device/emulator"
)

var squareProgram = &device.Program{
	Name: "square",
	Source: `
__kernel void square(__global const int *in, __global int *out, const uint count){
	uint gid = get_global_id(0);
	if (gid < count) out[gid] = in[gid] * in[gid];
}
`,
	Host: map[string]device.HostKernel{
		"square": {
			Args: 3,
			Run: func(wg *device.WorkGroup) error {
				in := device.View[int32](wg.Bytes(0))
				out := device.View[int32](wg.Bytes(1))
				count := int(wg.Uint32(2))
				for lid := 0; lid < wg.Size(); lid++ {
					gid := wg.GlobalID(lid)
					if gid < count {
						out[gid] = in[gid] * in[gid]
					}
				}
				return nil
			},
		},
	},
}

func newTestContext(t *testing.T) *device.Context {
	ctx := device.NewContext()
	if err := ctx.Initialize(emulator.New(emulator.Config{})); err != nil {
		t.Fatal(err)
	}
	return ctx
}

func TestContextRequiresInitialization(t *testing.T) {
	ctx := device.NewContext()
	if ctx.Ready() {
		t.Fatal("expected new context not to be ready")
	}
	if id := ctx.NewMemory(); id != device.InvalidMemory {
		t.Fatalf("expected NewMemory on an uninitialized context to return InvalidMemory; got %d", id)
	}
	if id := ctx.NewFunction(); id != device.InvalidFunction {
		t.Fatalf("expected NewFunction on an uninitialized context to return InvalidFunction; got %d", id)
	}
	if err := ctx.FinishCommands(0); !errors.Is(err, device.ErrNotReady) {
		t.Fatalf("expected to get ErrNotReady; got %v", err)
	}

	if err := ctx.Initialize(emulator.New(emulator.Config{})); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Initialize(emulator.New(emulator.Config{})); !errors.Is(err, device.ErrAlreadyInitialized) {
		t.Fatalf("expected to get ErrAlreadyInitialized; got %v", err)
	}
	if err := ctx.EnqueueBarrier(5); !errors.Is(err, device.ErrInvalidQueue) {
		t.Fatalf("expected to get ErrInvalidQueue; got %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidHandles(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Close()

	for _, id := range []device.MemoryID{device.InvalidMemory, 42} {
		mem := ctx.Memory(id)
		if mem == nil {
			t.Fatalf("[memory %d] expected a non-nil invalid object", id)
		}
		if mem.Valid() {
			t.Fatalf("[memory %d] expected invalid object to report !Valid()", id)
		}
		if err := mem.Initialize(16, device.ReadWrite); !errors.Is(err, device.ErrInvalidHandle) {
			t.Fatalf("[memory %d] expected to get ErrInvalidHandle; got %v", id, err)
		}
		if err := mem.Write(0, 0, []uint32{1}); !errors.Is(err, device.ErrInvalidHandle) {
			t.Fatalf("[memory %d] expected to get ErrInvalidHandle; got %v", id, err)
		}
	}

	fn := ctx.Function(device.InvalidFunction)
	if fn.Valid() {
		t.Fatal("expected invalid function object to report !Valid()")
	}
	if err := fn.Exec1D(0, 0, 16, 0); !errors.Is(err, device.ErrInvalidHandle) {
		t.Fatalf("expected to get ErrInvalidHandle; got %v", err)
	}
}

func TestHandleSlotsAreNotReused(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Close()

	first := ctx.NewMemory()
	second := ctx.NewMemory()
	if first != 0 || second != 1 {
		t.Fatalf("expected handles 0 and 1; got %d and %d", first, second)
	}
	if err := ctx.Memory(first).Initialize(64, device.ReadWrite); err != nil {
		t.Fatal(err)
	}

	ctx.DeleteMemory(first)
	if ctx.Memory(first).Valid() {
		t.Fatal("expected deleted handle to resolve to the invalid object")
	}
	if stats := ctx.Stats(); stats.Live != 0 {
		t.Fatalf("expected 0 live allocations after delete; got %d", stats.Live)
	}

	third := ctx.NewMemory()
	if third != 2 {
		t.Fatalf("expected deleted slot not to be reused; got handle %d", third)
	}

	// Deleting an unknown handle is a no-op
	ctx.DeleteMemory(first)
	ctx.DeleteFunction(12)
}

func TestMemoryReadWrite(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Close()

	id := ctx.NewMemory()
	mem := ctx.Memory(id)
	if mem.Valid() {
		t.Fatal("expected new memory slot to be uninitialized")
	}
	if err := mem.Write(0, 0, []uint32{1}); !errors.Is(err, device.ErrUninitialized) {
		t.Fatalf("expected to get ErrUninitialized; got %v", err)
	}

	data := []uint32{1, 2, 3, 4, 5, 6, 7, 8}
	if err := mem.InitializeWithData(data, device.ReadWrite); err != nil {
		t.Fatal(err)
	}
	if mem.Size() != 32 {
		t.Fatalf("expected buffer size to be 32; got %d", mem.Size())
	}

	if err := mem.Write(0, 8, []uint32{30, 40}); err != nil {
		t.Fatal(err)
	}
	out := make([]uint32, 4)
	if err := mem.Read(0, 4, out); err != nil {
		t.Fatal(err)
	}
	expOut := []uint32{2, 30, 40, 5}
	for i := range expOut {
		if out[i] != expOut[i] {
			t.Fatalf("[item %d] expected %d; got %d", i, expOut[i], out[i])
		}
	}

	if err := mem.Read(0, 24, out); !errors.Is(err, device.ErrOutOfBounds) {
		t.Fatalf("expected to get ErrOutOfBounds; got %v", err)
	}
	if err := mem.Write(0, 0, 42); !errors.Is(err, device.ErrNotSlice) {
		t.Fatalf("expected to get ErrNotSlice; got %v", err)
	}

	dst := ctx.Memory(ctx.NewMemory())
	if err := dst.Initialize(16, device.ReadWrite); err != nil {
		t.Fatal(err)
	}
	if err := mem.CopyTo(0, dst, 16, 4, 12); err != nil {
		t.Fatal(err)
	}
	if err := dst.Read(0, 0, out); err != nil {
		t.Fatal(err)
	}
	expOut = []uint32{0, 5, 6, 7}
	for i := range expOut {
		if out[i] != expOut[i] {
			t.Fatalf("[item %d] expected copied value %d; got %d", i, expOut[i], out[i])
		}
	}

	if err := mem.Resize(8); err != nil {
		t.Fatal(err)
	}
	if err := mem.Read(0, 0, out[:2]); err != nil {
		t.Fatal(err)
	}
	if out[0] != 0 || out[1] != 0 {
		t.Fatalf("expected resized buffer contents to be cleared; got %v", out[:2])
	}

	stats := ctx.Stats()
	if stats.Live != 2 || stats.Total != 3 || stats.Bytes != 24 {
		t.Fatalf("expected 2 live allocations, 3 total and 24 bytes; got %+v", stats)
	}

	if _, bound := mem.TextureID(); bound {
		t.Fatal("expected buffer not to be bound to a texture")
	}
	if err := mem.ShareTexture(1); !errors.Is(err, device.ErrUnsupported) {
		t.Fatalf("expected to get ErrUnsupported; got %v", err)
	}
}

func TestFunctionExecute(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Close()

	ids, err := ctx.BuildFunctions(squareProgram, "square")
	if err != nil {
		t.Fatal(err)
	}
	fn := ctx.Function(ids[0])
	if !fn.Valid() || fn.Name() != "square" {
		t.Fatalf("expected a valid function named square; got %q", fn.Name())
	}

	dataSize := 32
	dataIn := make([]int32, dataSize)
	for i := range dataIn {
		dataIn[i] = int32(i)
	}

	inID := ctx.NewMemory()
	if err = ctx.Memory(inID).InitializeWithData(dataIn, device.ReadOnly); err != nil {
		t.Fatal(err)
	}
	out := ctx.Memory(ctx.NewMemory())
	if err = out.Initialize(dataSize*4, device.WriteOnly); err != nil {
		t.Fatal(err)
	}

	if err = fn.Exec1D(0, 0, dataSize, 8); !errors.Is(err, device.ErrArgNotSet) {
		t.Fatalf("expected to get ErrArgNotSet; got %v", err)
	}
	if err = fn.SetArg(0, "foo"); !errors.Is(err, device.ErrUnsupportedArg) {
		t.Fatalf("expected to get ErrUnsupportedArg; got %v", err)
	}
	if err = fn.SetArg(3, uint32(0)); err == nil {
		t.Fatal("expected to get an error when setting an out of range arg")
	}

	if err = fn.SetArgs(inID, out, uint32(dataSize)); err != nil {
		t.Fatal(err)
	}
	if err = fn.Exec1D(0, 0, dataSize, 8); err != nil {
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

	// Args persist and memory handles survive reallocation
	for i := range dataIn {
		dataIn[i] = 2
	}
	if err = ctx.Memory(inID).InitializeWithData(dataIn, device.ReadOnly); err != nil {
		t.Fatal(err)
	}
	if err = fn.Execute(0); err != nil {
		t.Fatal(err)
	}
	if err = out.Read(0, 0, dataOut); err != nil {
		t.Fatal(err)
	}
	if dataOut[dataSize-1] != 4 {
		t.Fatalf("expected dispatch to use the reallocated input; got %d", dataOut[dataSize-1])
	}

	ctx.DeleteMemory(inID)
	if err = fn.Execute(0); !errors.Is(err, device.ErrInvalidHandle) {
		t.Fatalf("expected to get ErrInvalidHandle for a deleted memory arg; got %v", err)
	}
}

func TestBuildFunctionsFailure(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Close()

	if _, err := ctx.BuildFunctions(squareProgram, "square", "cube"); err == nil {
		t.Fatal("expected build of an unknown kernel to fail")
	}
	if fn := ctx.Function(0); fn.Valid() {
		t.Fatal("expected no functions to be registered after a failed build")
	}

	id := ctx.NewFunction()
	if err := ctx.Function(id).Initialize(squareProgram, "square"); err != nil {
		t.Fatal(err)
	}
	if !ctx.Function(id).Valid() {
		t.Fatal("expected initialized function to be valid")
	}
}

func TestMaxWorkGroupSize(t *testing.T) {
	ctx := device.NewContext()
	if limit := ctx.MaxWorkGroupSize(); limit != 0 {
		t.Fatalf("expected uninitialized context limit to be 0; got %d", limit)
	}

	cfg := emulator.Config{
		MaxWorkGroupSize:    128,
		KernelWorkGroupSize: map[string]int{"square": 32},
	}
	if err := ctx.Initialize(emulator.New(cfg)); err != nil {
		t.Fatal(err)
	}
	defer ctx.Close()

	if limit := ctx.MaxWorkGroupSize(); limit != 128 {
		t.Fatalf("expected backend limit 128; got %d", limit)
	}

	ids, err := ctx.BuildFunctions(squareProgram, "square")
	if err != nil {
		t.Fatal(err)
	}
	if limit := ctx.MaxWorkGroupSize(ids...); limit != 32 {
		t.Fatalf("expected kernel limit 32; got %d", limit)
	}
	if limit := ctx.MaxWorkGroupSize(device.InvalidFunction); limit != 0 {
		t.Fatalf("expected invalid function limit to be 0; got %d", limit)
	}
}
