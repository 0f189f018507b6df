// Package config defines the command line and configuration file surface.
package config

import "github.com/Alia5/usbridge/internal/cmd"

// LogConfig controls logging for every command.
type LogConfig struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"USBRIDGE_LOG_LEVEL"`
	File    string `help:"Write logs to this file instead of the console" env:"USBRIDGE_LOG_FILE"`
	RawFile string `help:"Hex dump every USB transfer to this file" env:"USBRIDGE_LOG_RAW_FILE"`
}

// CLI is the root command.
type CLI struct {
	ConfigFile string    `name:"config" help:"Configuration file (json, yaml or toml)" env:"USBRIDGE_CONFIG"`
	Log        LogConfig `embed:"" prefix:"log."`

	Serve     cmd.Serve         `cmd:"" help:"Bridge the USB device to the file catalog" default:"withargs"`
	Devices   cmd.Devices       `cmd:"" help:"List attached devices the bridge recognizes"`
	Status    cmd.Status        `cmd:"" help:"Show link state and transfers of a running bridge"`
	Config    cmd.ConfigCommand `cmd:"" help:"Configuration helpers"`
	Install   cmd.Install       `cmd:"" help:"Install usbridge as a systemd service (linux)"`
	Uninstall cmd.Uninstall     `cmd:"" help:"Remove the systemd service (linux)"`
}
