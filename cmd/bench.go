package cmd

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/clbvh/scene"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

type benchResult struct {
	triangles int
	nodes     int
	min       time.Duration
	max       time.Duration
	total     time.Duration
	runs      int
}

// Build BVHs for a range of mesh sizes and report timings.
func Bench(ctx *cli.Context) error {
	setupLogging(ctx)

	sizes, err := parseSizes(ctx.String("sizes"))
	if err != nil {
		return err
	}
	layout, err := scene.ParseLayout(ctx.String("layout"))
	if err != nil {
		return err
	}
	runs := ctx.Int("runs")
	if runs <= 0 {
		return fmt.Errorf("invalid run count %d", runs)
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

	results := make([]benchResult, 0, len(sizes))
	for _, size := range sizes {
		mesh := scene.GenerateMesh(layout, size, ctx.Int64("seed"))
		res := benchResult{triangles: size, runs: runs}

		sc := scene.New(devCtx)
		for run := 0; run < runs; run++ {
			// The build reorders the index buffer so every run starts from a
			// fresh upload.
			if err = sc.Upload(mesh); err != nil {
				sc.Release()
				return err
			}
			stats, err := sc.BuildBVH(builder, 0)
			if err != nil {
				sc.Release()
				return err
			}

			res.nodes = stats.Nodes
			res.total += stats.Total
			if run == 0 || stats.Total < res.min {
				res.min = stats.Total
			}
			if stats.Total > res.max {
				res.max = stats.Total
			}
		}
		sc.Release()

		logger.Infof("%d triangles: %s avg", size, res.total/time.Duration(runs))
		results = append(results, res)
	}

	displayBenchResults(results)
	return nil
}

func parseSizes(value string) ([]int, error) {
	var sizes []int
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		size, err := strconv.Atoi(field)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid mesh size %q", field)
		}
		sizes = append(sizes, size)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no mesh sizes specified")
	}
	return sizes, nil
}

func displayBenchResults(results []benchResult) {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Triangles", "Nodes", "Runs", "Min", "Avg", "Max", "MTris/sec"})
	for _, res := range results {
		avg := res.total / time.Duration(res.runs)
		rate := 0.0
		if avg > 0 {
			rate = float64(res.triangles) / avg.Seconds() / 1e6
		}
		table.Append([]string{
			fmt.Sprintf("%d", res.triangles),
			fmt.Sprintf("%d", res.nodes),
			fmt.Sprintf("%d", res.runs),
			fmt.Sprintf("%s", res.min),
			fmt.Sprintf("%s", avg),
			fmt.Sprintf("%s", res.max),
			fmt.Sprintf("%.2f", rate),
		})
	}
	table.Render()

	logger.Noticef("benchmark results\n%s", buf.String())
}
