package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/Alia5/usbridge/usb"
)

// Devices lists attached devices the bridge would serve.
type Devices struct{}

// Run is called by Kong when the devices command is executed.
func (d *Devices) Run(lister usb.Lister) error {
	return d.List(os.Stdout, lister)
}

func (d *Devices) List(w io.Writer, lister usb.Lister) error {
	infos, err := lister.List(usb.DefaultIdentities)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no matching devices attached")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBUS\tADDRESS\tPORT\tSPEED")
	for _, i := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", i.Identity, i.Identity.Name, i.Bus, i.Address, i.Port, i.Speed)
	}
	return tw.Flush()
}
