package progress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

var errNoDisplay = errors.New("element has no display")

// BarUI returns a UIFactory that draws progressbar bars on w.
func BarUI(w io.Writer) UIFactory {
	return func(size int64, slot int, label, unit string) (Element, error) {
		if size <= 0 {
			size = -1
		}
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetDescription(describe(slot, label)),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowBytes(unit == "B"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionSetPredictTime(false),
		)
		return &barElement{bar: bar, w: w, slot: slot}, nil
	}
}

// DefaultUI draws bars on stderr when it is a terminal and renders nothing
// otherwise.
func DefaultUI() UIFactory {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return BarUI(os.Stderr)
	}
	return NopUI
}

func describe(slot int, label string) string {
	if slot == 0 {
		return label
	}
	return fmt.Sprintf("[%d] %s", slot, label)
}

type barElement struct {
	bar  *progressbar.ProgressBar
	w    io.Writer
	slot int
}

func (b *barElement) Add(n int64) error { return b.bar.Add64(n) }

func (b *barElement) Describe(label string, refresh bool) error {
	b.bar.Describe(describe(b.slot, label))
	if refresh {
		return b.bar.RenderBlank()
	}
	return nil
}

func (b *barElement) Println(line string) error {
	if err := b.bar.Clear(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(b.w, line); err != nil {
		return err
	}
	return b.bar.RenderBlank()
}

func (b *barElement) Close() error { return b.bar.Close() }
