// Package catalog serves the installable files found under a directory tree.
package catalog

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Alia5/usbridge/apitypes"
)

// ErrNotFound is returned by Open for an unknown id.
var ErrNotFound = errors.New("catalog: file not found")

// DefaultExtensions are the file types listed when none are configured.
var DefaultExtensions = []string{".nsp", ".nsz", ".xci", ".xcz"}

var (
	idTag      = regexp.MustCompile(`\[([0-9A-Fa-f]{16})\]`)
	versionTag = regexp.MustCompile(`\[[vV](\d+)\]`)
)

// Catalog lists files below Root. It rescans on every call so files added
// while the bridge runs show up without a restart.
type Catalog struct {
	Root       string
	Extensions []string
}

// New returns a Catalog for root. Empty exts selects DefaultExtensions.
func New(root string, exts []string) *Catalog {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	norm := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		norm = append(norm, e)
	}
	return &Catalog{Root: root, Extensions: norm}
}

// Entry is a listed file with its location on disk.
type Entry struct {
	apitypes.FileEntry
	Path string
}

// List walks Root and returns the matching files ordered by path.
func (c *Catalog) List() ([]Entry, error) {
	var entries []Entry
	used := map[string]bool{}
	err := filepath.WalkDir(c.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !c.matches(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.Root, path)
		if err != nil {
			return err
		}
		e := Entry{
			FileEntry: apitypes.FileEntry{
				ID:      fileID(d.Name(), filepath.ToSlash(rel), used),
				Name:    d.Name(),
				Version: parseVersion(d.Name()),
				Size:    info.Size(),
				ModTime: info.ModTime().Unix(),
			},
			Path: path,
		}
		used[e.ID] = true
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.Root, err)
	}
	return entries, nil
}

// Lookup finds the entry with the given id.
func (c *Catalog) Lookup(id string) (Entry, error) {
	entries, err := c.List()
	if err != nil {
		return Entry{}, err
	}
	i := slices.IndexFunc(entries, func(e Entry) bool { return strings.EqualFold(e.ID, id) })
	if i < 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entries[i], nil
}

// Open looks up id and opens the file for reading.
func (c *Catalog) Open(id string) (*os.File, Entry, error) {
	e, err := c.Lookup(id)
	if err != nil {
		return nil, Entry{}, err
	}
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("open %s: %w", e.Name, err)
	}
	return f, e, nil
}

func (c *Catalog) matches(name string) bool {
	return slices.Contains(c.Extensions, strings.ToLower(filepath.Ext(name)))
}

// fileID prefers a title id tag in the name. Untagged files, and files whose
// tag is already taken, get a hash of their relative path.
func fileID(name, rel string, used map[string]bool) string {
	if m := idTag.FindStringSubmatch(name); m != nil {
		id := strings.ToUpper(m[1])
		if !used[id] {
			return id
		}
	}
	h := fnv.New64a()
	h.Write([]byte(rel))
	return fmt.Sprintf("%016X", h.Sum64())
}

func parseVersion(name string) *uint32 {
	m := versionTag.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return nil
	}
	u := uint32(v)
	return &u
}
