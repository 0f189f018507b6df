//go:build linux

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Alia5/usbridge/usb"
)

const serviceName = "usbridge.service"

// serviceInstaller writes the systemd unit and the udev rule granting the
// service user access to the bridged devices.
type serviceInstaller struct {
	unitPath   string
	rulesPath  string
	identities []usb.Identity
	run        func(name string, args ...string) error
	logger     *slog.Logger
}

func newServiceInstaller(logger *slog.Logger) *serviceInstaller {
	return &serviceInstaller{
		unitPath:   "/etc/systemd/system/" + serviceName,
		rulesPath:  "/etc/udev/rules.d/70-usbridge.rules",
		identities: usb.DefaultIdentities,
		run:        runCommand,
		logger:     logger,
	}
}

func install(logger *slog.Logger, args []string) error {
	exePath, err := currentExecutable()
	if err != nil {
		return err
	}
	return newServiceInstaller(logger).install(exePath, args)
}

func uninstall(logger *slog.Logger) error {
	return newServiceInstaller(logger).uninstall()
}

func (s *serviceInstaller) install(exePath string, args []string) error {
	if err := os.WriteFile(s.rulesPath, []byte(udevRules(s.identities)), 0o644); err != nil {
		return fmt.Errorf("write udev rules: %w", err)
	}
	if err := s.reloadUdev(); err != nil {
		return err
	}
	if err := os.WriteFile(s.unitPath, []byte(systemdUnitContent(exePath, args)), 0o644); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}
	for _, step := range [][]string{
		{"daemon-reload"},
		{"enable", serviceName},
		{"restart", serviceName},
	} {
		if err := s.run("systemctl", step...); err != nil {
			return err
		}
	}
	s.logger.Info("Service installed", "unit", s.unitPath, "rules", s.rulesPath, "exe", exePath)
	return nil
}

// uninstall keeps going past failing steps and reports all of them.
func (s *serviceInstaller) uninstall() error {
	var errs []error
	for _, step := range [][]string{{"stop", serviceName}, {"disable", serviceName}} {
		if err := s.run("systemctl", step...); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range []string{s.unitPath, s.rulesPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := s.run("systemctl", "daemon-reload"); err != nil {
		errs = append(errs, err)
	}
	if err := s.reloadUdev(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("Service removed", "unit", s.unitPath, "rules", s.rulesPath)
	return nil
}

func (s *serviceInstaller) reloadUdev() error {
	if err := s.run("udevadm", "control", "--reload-rules"); err != nil {
		return err
	}
	return s.run("udevadm", "trigger", "--subsystem-match=usb", "--action=add")
}

// udevRules grants the active seat and the plugdev group access to every
// identity the link manager probes.
func udevRules(ids []usb.Identity) string {
	var b strings.Builder
	b.WriteString("# Installed by usbridge install\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "# %s\n", id.Name)
		fmt.Fprintf(&b,
			"SUBSYSTEM==\"usb\", ATTRS{idVendor}==\"%04x\", ATTRS{idProduct}==\"%04x\", MODE=\"0660\", GROUP=\"plugdev\", TAG+=\"uaccess\"\n",
			id.Vendor, id.Product)
	}
	return b.String()
}

// systemdUnitContent builds a unit running "serve" with args.
func systemdUnitContent(exePath string, args []string) string {
	execStart := strconv.Quote(exePath) + " serve"
	for _, a := range args {
		execStart += " " + strconv.Quote(a)
	}
	return fmt.Sprintf(`[Unit]
Description=usbridge USB transfer bridge
After=systemd-udev-settle.service

[Service]
Type=simple
ExecStart=%s
WorkingDirectory=%s
Restart=on-failure
RestartSec=2

[Install]
WantedBy=multi-user.target
`, execStart, filepath.Dir(exePath))
}

func runCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
