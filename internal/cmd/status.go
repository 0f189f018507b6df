package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Alia5/usbridge/apiclient"
)

// Status queries a running bridge over its status side channel.
type Status struct {
	Addr    string        `help:"Status server address" default:"127.0.0.1:9170" env:"USBRIDGE_STATUS_ADDR"`
	Timeout time.Duration `help:"Request timeout" default:"5s"`
}

// Run is called by Kong when the status command is executed.
func (s *Status) Run() error {
	c := apiclient.NewWithConfig(s.Addr, &apiclient.Config{Timeout: s.Timeout})
	return s.Print(context.Background(), os.Stdout, c)
}

// Print writes the link state and a table of open transfers to w.
func (s *Status) Print(ctx context.Context, w io.Writer, c *apiclient.Client) error {
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s: link %s\n", st.Server, st.Version, st.Link)
	if len(st.Transfers) == 0 {
		_, err := fmt.Fprintln(w, "no transfers in progress")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tID\tPROGRESS\tSPEED\tELAPSED\tDESCRIPTION")
	for _, t := range st.Transfers {
		pct := 0.0
		if t.Size > 0 {
			pct = float64(t.Progress) * 100 / float64(t.Size)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d/%d (%.1f%%)\t%.0f/s\t%.1fs\t%s\n",
			t.Slot, t.ID, t.Progress, t.Size, pct, t.Speed, t.Elapsed, t.Description)
	}
	return tw.Flush()
}
