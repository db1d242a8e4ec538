package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voicekey/voicekey/pkg/audio/capture"
	"github.com/voicekey/voicekey/pkg/cli"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := capture.Devices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			cli.PrintWarning("No input devices found")
			return nil
		}

		if outputJSON {
			return cli.Output(os.Stdout, devices, cli.FormatJSON)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEFAULT\tNAME\tCHANNELS\tSAMPLE RATE")
		for _, d := range devices {
			def := ""
			if d.IsDefault {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.0f Hz\n", def, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
		}
		return w.Flush()
	},
}
