package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

const (
	// EnvFile names an explicit configuration file, like --config.
	EnvFile = "USBRIDGE_CONFIG"
	// SystemDir holds system-wide configuration on unix.
	SystemDir = "/etc/usbridge"

	// Settings are looked up as usbridge.<ext> in the working directory and
	// as config.<ext> in the user and system directories.
	workdirBase = "usbridge"
	dirBase     = "config"
)

// Sources lists configuration files per loader, highest priority first.
// Missing files are skipped by kong.
type Sources struct {
	JSON []string
	YAML []string
	TOML []string
}

// Discover collects candidate files: the explicit --config value (or
// USBRIDGE_CONFIG), then the working directory, the user configuration
// directory and SystemDir.
func Discover(args []string, getenv func(string) string) Sources {
	var s Sources
	if p := explicitFile(args, getenv); p != "" {
		s.add(p)
	}
	if wd, err := os.Getwd(); err == nil {
		s.addBase(filepath.Join(wd, workdirBase))
	}
	if dir, err := UserDir(); err == nil {
		s.addBase(filepath.Join(dir, dirBase))
	}
	if runtime.GOOS != "windows" {
		s.addBase(filepath.Join(SystemDir, dirBase))
	}
	return s
}

// Options returns the kong loaders for s. Flags and env vars override
// values read from files.
func (s Sources) Options() []kong.Option {
	return []kong.Option{
		kong.Configuration(kong.JSON, s.JSON...),
		kong.Configuration(kongyaml.Loader, s.YAML...),
		kong.Configuration(kongtoml.Loader, s.TOML...),
	}
}

// add routes p to the loader matching its extension; unknown extensions are
// read as JSON.
func (s *Sources) add(p string) {
	switch filepath.Ext(p) {
	case ".yaml", ".yml":
		s.YAML = append(s.YAML, p)
	case ".toml":
		s.TOML = append(s.TOML, p)
	default:
		s.JSON = append(s.JSON, p)
	}
}

func (s *Sources) addBase(base string) {
	for _, ext := range []string{".json", ".yaml", ".yml", ".toml"} {
		s.add(base + ext)
	}
}

// UserDir returns the per-user configuration directory.
func UserDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "usbridge"), nil
}

// UserFile returns the file `config init --user` writes for format.
func UserFile(format string) (string, error) {
	dir, err := UserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirBase+"."+format), nil
}

// WorkdirFile is the default file `config init` writes for format.
func WorkdirFile(format string) string {
	return workdirBase + "." + format
}

// explicitFile scans args ahead of kong so the named file can be loaded
// during parsing.
func explicitFile(args []string, getenv func(string) string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return getenv(EnvFile)
}
