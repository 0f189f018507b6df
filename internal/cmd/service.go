package cmd

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Install registers usbridge as a system service running serve.
type Install struct {
	Args []string `arg:"" optional:"" passthrough:"" help:"Arguments appended to the serve command line"`
}

// Run is called by Kong when the install command is executed.
func (i *Install) Run(logger *slog.Logger) error {
	return install(logger, i.Args)
}

// Uninstall stops and removes the system service.
type Uninstall struct{}

// Run is called by Kong when the uninstall command is executed.
func (u *Uninstall) Run(logger *slog.Logger) error {
	return uninstall(logger)
}

func currentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}
