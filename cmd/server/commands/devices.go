package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/soundwatch/internal/audio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := audio.ListInputDevices()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tCHANNELS\tRATE\tDEFAULT")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.0f\t%v\n", d.Name, d.Kind, d.Channels, d.DefaultSampleRate, d.Default)
			}
			return w.Flush()
		},
	}
}
