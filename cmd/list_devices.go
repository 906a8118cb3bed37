package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/clbvh/device/opencl"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// List available opencl devices.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	platforms, err := opencl.GetPlatformInfo()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("system provides %d opencl platform(s)\n", len(platforms)))

	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Platform", "Device", "Name", "Type", "Compute units", "Clock (Mhz)", "Max work-group", "Speed (GFlops)"})
	for pIdx, platformInfo := range platforms {
		for dIdx, dev := range platformInfo.Devices {
			table.Append([]string{
				fmt.Sprintf("%02d %s", pIdx, platformInfo.Name),
				fmt.Sprintf("%02d", dIdx),
				dev.Name,
				dev.Type.String(),
				fmt.Sprintf("%d", dev.ComputeUnits),
				fmt.Sprintf("%d", dev.ClockSpeed),
				fmt.Sprintf("%d", dev.MaxWorkGroupSize),
				fmt.Sprintf("%d", dev.Speed),
			})
		}
	}
	table.Render()

	logger.Noticef("device list\n%s", buf.String())
	return nil
}
