package subjects

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"subject-choices/internal/model"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinSeed []byte

// Entry is one built-in raw label and the name it resolves to.
type Entry struct {
	Raw       string `yaml:"raw" json:"raw"`
	Canonical string `yaml:"canonical" json:"canonical"`
}

type catalogFile struct {
	YearGroups map[string][]Entry `yaml:"year_groups"`
}

// Catalog is the read-only built-in mapping table. It is safe for concurrent use.
type Catalog struct {
	tables  map[model.YearGroup]map[string]string
	entries map[model.YearGroup][]Entry
}

// DuplicateKeyError is returned when two seed entries fold to the same key.
type DuplicateKeyError struct {
	YearGroup model.YearGroup
	First     Entry
	Second    Entry
}

func (e DuplicateKeyError) Error() string {
	kind := "redundant"
	if e.First.Canonical != e.Second.Canonical {
		kind = "conflicting"
	}
	return fmt.Sprintf("%s duplicate key in %s: %q (%q) and %q (%q)",
		kind, e.YearGroup, e.First.Raw, e.First.Canonical, e.Second.Raw, e.Second.Canonical)
}

// foldKey normalises a label for case-insensitive comparison.
func foldKey(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// LoadCatalog decodes a YAML seed. Every year group must be one of the known
// enumeration and every folded key must appear once.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subject catalog: %w", err)
	}

	catalog := &Catalog{
		tables:  make(map[model.YearGroup]map[string]string),
		entries: make(map[model.YearGroup][]Entry),
	}

	for name, entries := range file.YearGroups {
		yg, err := model.ParseYearGroup(name)
		if err != nil {
			return nil, fmt.Errorf("subject catalog year group %q: %w", name, err)
		}

		table := make(map[string]string, len(entries))
		seen := make(map[string]Entry, len(entries))
		for _, entry := range entries {
			entry.Raw = strings.TrimSpace(entry.Raw)
			entry.Canonical = strings.TrimSpace(entry.Canonical)
			if entry.Raw == "" || entry.Canonical == "" {
				return nil, fmt.Errorf("subject catalog %s: empty label in entry %q -> %q", yg, entry.Raw, entry.Canonical)
			}

			key := foldKey(entry.Raw)
			if prev, ok := seen[key]; ok {
				return nil, DuplicateKeyError{YearGroup: yg, First: prev, Second: entry}
			}
			seen[key] = entry
			table[key] = entry.Canonical
		}

		sorted := make([]Entry, 0, len(entries))
		for _, entry := range seen {
			sorted = append(sorted, entry)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Raw < sorted[j].Raw })

		catalog.tables[yg] = table
		catalog.entries[yg] = sorted
	}

	return catalog, nil
}

// DefaultCatalog loads the seed embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(builtinSeed)
}

// Lookup matches raw case-insensitively within one year group.
func (c *Catalog) Lookup(yearGroup model.YearGroup, raw string) (string, bool) {
	table, ok := c.tables[yearGroup]
	if !ok {
		return "", false
	}
	canonical, ok := table[foldKey(raw)]
	return canonical, ok
}

// Entries returns a copy of the year group's entries ordered by raw label.
func (c *Catalog) Entries(yearGroup model.YearGroup) []Entry {
	entries := c.entries[yearGroup]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func (c *Catalog) Len(yearGroup model.YearGroup) int {
	return len(c.tables[yearGroup])
}
