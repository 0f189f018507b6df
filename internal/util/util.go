// Package util holds small platform helpers for the command line.
package util

import (
	"bufio"
	"fmt"
	"io"
)

// PauseIfGUI waits for Enter on in when the process was started by
// double-clicking it, so the console window stays open long enough to read
// err. It does nothing for a nil err or a terminal launch.
func PauseIfGUI(err error, out io.Writer, in io.Reader) {
	if err == nil || !StartedFromGUI() {
		return
	}
	fmt.Fprintf(out, "usbridge stopped: %v\nPress Enter to exit...", err)
	_, _ = bufio.NewReader(in).ReadString('\n')
}
