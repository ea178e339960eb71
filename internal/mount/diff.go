package mount

import "sort"

// Changes lists file paths that differ between two descriptors.
type Changes struct {
	Added    []string `json:"added,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

// Empty reports whether no file changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Touches reports whether path was added, modified or removed.
func (c Changes) Touches(path string) bool {
	for _, list := range [][]string{c.Added, c.Modified, c.Removed} {
		for _, p := range list {
			if p == path {
				return true
			}
		}
	}
	return false
}

// Diff compares the files of prev and cur. Paths in each list are sorted.
func Diff(prev, cur Descriptor) Changes {
	before := prev.Files()
	after := cur.Files()

	var c Changes
	for path, contents := range after {
		old, ok := before[path]
		switch {
		case !ok:
			c.Added = append(c.Added, path)
		case old != contents:
			c.Modified = append(c.Modified, path)
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			c.Removed = append(c.Removed, path)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Modified)
	sort.Strings(c.Removed)
	return c
}

// Equal reports whether two descriptors describe the same filesystem,
// including empty directories.
func Equal(a, b Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for name, ea := range a {
		eb, ok := b[name]
		if !ok || ea.IsDir() != eb.IsDir() {
			return false
		}
		if ea.IsDir() {
			if !Equal(ea.Directory, eb.Directory) {
				return false
			}
			continue
		}
		if ea.File.Contents != eb.File.Contents {
			return false
		}
	}
	return true
}
