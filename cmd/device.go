package cmd

import (
	"fmt"

	"github.com/achilleasa/clbvh/bvh"
	"github.com/achilleasa/clbvh/device"
	"github.com/achilleasa/clbvh/device/emulator"
	"github.com/achilleasa/clbvh/device/opencl"
	"github.com/urfave/cli"
)

// Create and initialize a device context for the backend selected by the
// global flags.
func openContext(ctx *cli.Context) (*device.Context, error) {
	numQueues := ctx.GlobalInt("queues")

	var backend device.Backend
	switch name := ctx.GlobalString("backend"); name {
	case "emulated":
		backend = emulator.New(emulator.Config{NumQueues: numQueues})
	case "opencl":
		typeMask, err := opencl.ParseDeviceType(ctx.GlobalString("device-type"))
		if err != nil {
			return nil, err
		}
		dev, err := opencl.SelectDevice(typeMask, ctx.GlobalString("device"))
		if err != nil {
			return nil, err
		}
		logger.Infof("selected opencl device %q", dev.Name)

		if backend, err = opencl.New(dev, numQueues); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}

	devCtx := device.NewContext()
	if err := devCtx.Initialize(backend); err != nil {
		backend.Close()
		return nil, err
	}
	return devCtx, nil
}

// Create and initialize a builder using the options selected by the global
// flags.
func newBuilder(ctx *cli.Context, devCtx *device.Context) (*bvh.Builder, error) {
	b := bvh.NewBuilder(bvh.Options{
		WorkGroupSize: ctx.GlobalInt("wg-size"),
		MaxLeafPrims:  ctx.GlobalInt("leaf-size"),
	})
	if err := b.Init(devCtx); err != nil {
		return nil, err
	}
	return b, nil
}
