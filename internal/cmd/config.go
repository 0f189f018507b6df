package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// ConfigCommand groups config-related subcommands.
type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"Generate a configuration template"`
}

// ConfigInit scaffolds a configuration file for a command.
type ConfigInit struct {
	Command string `arg:"" name:"command" help:"Command to generate config for" enum:"serve" default:"serve"`
	Format  string `help:"Output format" enum:"json,yaml,yml,toml" default:"json"`
	Output  string `help:"Destination file path (defaults to usbridge.<format> in the current directory)"`
	User    bool   `help:"Write to the user configuration directory instead of the current directory"`
	Force   bool   `help:"Overwrite if the file already exists"`
}

var configTemplates = map[string]reflect.Type{
	"serve": reflect.TypeOf(Serve{}),
}

// ConfigFiles resolves the default destinations of config init.
type ConfigFiles struct {
	// User returns the file in the user configuration directory.
	User func(format string) (string, error)
	// Workdir returns the file name used in the current directory.
	Workdir func(format string) string
}

// Run renders the command's flags and their defaults into a template file.
func (c *ConfigInit) Run(files ConfigFiles) error {
	format := normalizeFormat(c.Format)
	if format == "" {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}
	t, ok := configTemplates[c.Command]
	if !ok {
		return fmt.Errorf("unknown command %q", c.Command)
	}

	dest, err := c.destination(files, format)
	if err != nil {
		return err
	}
	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}

	data, err := renderTemplate(buildMapFromStruct(t), format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func (c *ConfigInit) destination(files ConfigFiles, format string) (string, error) {
	switch {
	case c.Output != "":
		return c.Output, nil
	case c.User:
		if files.User == nil {
			return "", errors.New("no user configuration directory")
		}
		return files.User(format)
	case files.Workdir != nil:
		return files.Workdir(format), nil
	default:
		return c.Command + "." + format, nil
	}
}

func renderTemplate(root map[string]any, format string) ([]byte, error) {
	switch format {
	case "yaml":
		return yaml.Marshal(root)
	case "toml":
		return toml.Marshal(root)
	default:
		return json.MarshalIndent(root, "", "  ")
	}
}

func normalizeFormat(f string) string {
	switch strings.ToLower(f) {
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	default:
		return ""
	}
}

func lowerCamel(s string) string {
	r := []rune(s)
	for i := 0; i < len(r) && unicode.IsUpper(r[i]); i++ {
		// Keep the last capital of an acronym followed by a word: USBPort -> usbPort.
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

func buildMapFromStruct(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := map[string]any{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("kong") == "-" {
			continue
		}

		if _, ok := f.Tag.Lookup("embed"); ok {
			sub := buildMapFromStruct(f.Type)
			if name := strings.TrimSuffix(f.Tag.Get("prefix"), "."); name != "" {
				out[name] = sub
				continue
			}
			for k, v := range sub {
				out[k] = v
			}
			continue
		}

		if val := defaultValueForField(f.Type, f.Tag.Get("default")); val != nil {
			out[lowerCamel(f.Name)] = val
		}
	}
	return out
}

func defaultValueForField(t reflect.Type, def string) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "time" && t.Name() == "Duration" {
		if def == "" {
			return "0s"
		}
		return def
	}
	switch t.Kind() {
	case reflect.String:
		return def
	case reflect.Bool:
		b, _ := strconv.ParseBool(def)
		return b
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(def, 10, 64)
		return n
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, _ := strconv.ParseUint(def, 10, 64)
		return n
	case reflect.Float32, reflect.Float64:
		f, _ := strconv.ParseFloat(def, 64)
		return f
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			return nil
		}
		items := []string{}
		for _, s := range strings.Split(def, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		return items
	case reflect.Struct:
		return buildMapFromStruct(t)
	default:
		return nil
	}
}
