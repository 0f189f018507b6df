package progress

// Element is the console representation of one tracker.
type Element interface {
	Add(n int64) error
	Describe(label string, refresh bool) error
	// Println writes a line above the element without corrupting it.
	Println(line string) error
	Close() error
}

// UIFactory creates the element for a newly opened tracker.
type UIFactory func(size int64, slot int, label, unit string) (Element, error)

// NopUI renders nothing.
func NopUI(int64, int, string, string) (Element, error) { return nopElement{}, nil }

type nopElement struct{}

func (nopElement) Add(int64) error             { return nil }
func (nopElement) Describe(string, bool) error { return nil }
func (nopElement) Println(string) error        { return errNoDisplay }
func (nopElement) Close() error                { return nil }
