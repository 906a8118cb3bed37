package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/clbvh/bvh"
	"github.com/achilleasa/clbvh/scene"
	"github.com/achilleasa/clbvh/scene/reader"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Load or generate a mesh, build its BVH and print build statistics.
func BuildMesh(ctx *cli.Context) error {
	setupLogging(ctx)

	mesh, err := loadMesh(ctx)
	if err != nil {
		return err
	}

	devCtx, err := openContext(ctx)
	if err != nil {
		return err
	}
	defer devCtx.Close()

	builder, err := newBuilder(ctx, devCtx)
	if err != nil {
		return err
	}
	defer builder.Close()

	sc := scene.New(devCtx)
	defer sc.Release()

	if err = sc.Upload(mesh); err != nil {
		return err
	}

	stats, err := sc.BuildBVH(builder, 0)
	if err != nil {
		return err
	}

	if !ctx.Bool("skip-validation") {
		nodes, err := sc.Nodes()
		if err != nil {
			return err
		}
		if err = bvh.Validate(nodes, sc.NumTriangles); err != nil {
			return err
		}
		logger.Infof("validated %d nodes", len(nodes))
	}

	displayBuildStats(stats, sc)
	return nil
}

// Load the mesh file given by the mesh flag or generate a synthetic mesh.
func loadMesh(ctx *cli.Context) (*scene.Mesh, error) {
	if path := ctx.String("mesh"); path != "" {
		return reader.ReadMesh(path)
	}

	layout, err := scene.ParseLayout(ctx.String("layout"))
	if err != nil {
		return nil, err
	}
	return scene.GenerateMesh(layout, ctx.Int("triangles"), ctx.Int64("seed")), nil
}

func displayBuildStats(stats *bvh.Stats, sc *scene.Scene) {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Phase", "Time"})
	for phase := bvh.Phase(0); phase < bvh.NumPhases; phase++ {
		table.Append([]string{phase.String(), fmt.Sprintf("%s", stats.PhaseTimes[phase])})
	}
	table.SetFooter([]string{"TOTAL", fmt.Sprintf("%s", stats.Total)})
	table.Render()

	table = tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk([][]string{
		{"Triangles", fmt.Sprintf("%d", stats.Triangles)},
		{"Nodes", fmt.Sprintf("%d", stats.Nodes)},
		{"Leaves", fmt.Sprintf("%d", stats.Leaves)},
		{"Treelet levels", fmt.Sprintf("%d", stats.Levels)},
		{"Sort passes", fmt.Sprintf("%d", stats.SortPasses)},
		{"Device memory", fmt.Sprintf("%d bytes", sc.DeviceBytes())},
	})
	table.Render()

	logger.Noticef("build statistics\n%s", buf.String())
}
