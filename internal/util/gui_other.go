//go:build !windows

package util

// StartedFromGUI is always false outside Windows; desktop launchers there
// run the binary through a terminal or service manager.
func StartedFromGUI() bool { return false }
