package main

import (
	"os"

	"github.com/achilleasa/clbvh/cmd"
	"github.com/achilleasa/clbvh/log"
	"github.com/urfave/cli"
)

var logger = log.New("clbvh")

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "clbvh"
	app.Usage = "build bounding volume hierarchies on compute devices"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "backend",
			Value: "emulated",
			Usage: "compute backend (emulated, opencl)",
		},
		cli.StringFlag{
			Name:  "device",
			Usage: "select the first opencl device whose name contains this value",
		},
		cli.StringFlag{
			Name:  "device-type",
			Value: "all",
			Usage: "opencl device type (cpu, gpu, all)",
		},
		cli.IntFlag{
			Name:  "queues",
			Value: 2,
			Usage: "number of command queues",
		},
		cli.IntFlag{
			Name:  "wg-size",
			Value: 128,
			Usage: "work-group size",
		},
		cli.IntFlag{
			Name:  "leaf-size",
			Value: 1,
			Usage: "max primitives per leaf (1-4)",
		},
	}

	meshFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "layout",
			Value: "random",
			Usage: "synthetic mesh layout (random, grid, degenerate)",
		},
		cli.Int64Flag{
			Name:  "seed",
			Value: 1,
			Usage: "random seed for mesh generation",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list available opencl devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "build",
			Usage: "build a BVH for a synthetic mesh",
			Description: `
Load a wavefront obj mesh or generate a synthetic one, upload it to the
selected compute device and build its BVH. The resulting tree is read back and
validated before printing the build statistics.`,
			Flags: append([]cli.Flag{
				cli.IntFlag{
					Name:  "triangles, n",
					Value: 100000,
					Usage: "number of triangles",
				},
				cli.StringFlag{
					Name:  "mesh",
					Usage: "load the mesh from a wavefront obj file instead of generating one",
				},
				cli.BoolFlag{
					Name:  "skip-validation",
					Usage: "do not read back and validate the tree",
				},
			}, meshFlags...),
			Action: cmd.BuildMesh,
		},
		{
			Name:  "bench",
			Usage: "benchmark BVH builds for a range of mesh sizes",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "sizes",
					Value: "1000,10000,100000",
					Usage: "comma separated list of triangle counts",
				},
				cli.IntFlag{
					Name:  "runs",
					Value: 3,
					Usage: "number of builds per mesh size",
				},
			}, meshFlags...),
			Action: cmd.Bench,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
