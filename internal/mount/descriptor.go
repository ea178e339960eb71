// Package mount projects a file tree into the nested descriptor a sandbox
// filesystem accepts:
//
//	{"src": {"directory": {"index.js": {"file": {"contents": "..."}}}}}
package mount

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"sitesmith/internal/filetree"
)

// Descriptor maps entry names to entries at one directory level.
type Descriptor map[string]Entry

// Entry is either a directory or a file. Exactly one field is set.
type Entry struct {
	Directory Descriptor
	File      *File
}

// File carries file contents.
type File struct {
	Contents string `json:"contents"`
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.File == nil
}

type entryJSON struct {
	Directory *Descriptor `json:"directory,omitempty"`
	File      *File       `json:"file,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.File != nil {
		return json.Marshal(entryJSON{File: e.File})
	}
	dir := e.Directory
	if dir == nil {
		dir = Descriptor{}
	}
	return json.Marshal(entryJSON{Directory: &dir})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.File != nil && raw.Directory != nil:
		return errors.New("mount entry has both file and directory")
	case raw.File != nil:
		*e = Entry{File: raw.File}
	case raw.Directory != nil:
		*e = Entry{Directory: *raw.Directory}
	default:
		return errors.New("mount entry has neither file nor directory")
	}
	return nil
}

// Project converts a tree into its mount descriptor. An empty tree projects to
// an empty descriptor. The tree is not modified.
func Project(tree *filetree.Tree) Descriptor {
	out := Descriptor{}
	if tree == nil {
		return out
	}
	for _, root := range tree.Roots() {
		out[root.Name] = project(root)
	}
	return out
}

func project(n *filetree.Node) Entry {
	if n.Kind == filetree.KindFile {
		return Entry{File: &File{Contents: n.Content}}
	}
	dir := Descriptor{}
	for _, child := range n.Children {
		dir[child.Name] = project(child)
	}
	return Entry{Directory: dir}
}

// Lookup resolves a slash separated path inside the descriptor.
func (d Descriptor) Lookup(path string) (Entry, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	cur := d
	for i, part := range parts {
		entry, ok := cur[part]
		if !ok {
			return Entry{}, false
		}
		if i == len(parts)-1 {
			return entry, true
		}
		if !entry.IsDir() {
			return Entry{}, false
		}
		cur = entry.Directory
	}
	return Entry{}, false
}

// Files flattens the descriptor into path to contents.
func (d Descriptor) Files() map[string]string {
	out := make(map[string]string)
	d.flatten("", out, nil)
	return out
}

// Dirs lists every directory path in sorted order.
func (d Descriptor) Dirs() []string {
	var dirs []string
	d.flatten("", nil, &dirs)
	sort.Strings(dirs)
	return dirs
}

func (d Descriptor) flatten(prefix string, files map[string]string, dirs *[]string) {
	for name, entry := range d {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		if entry.IsDir() {
			if dirs != nil {
				*dirs = append(*dirs, path)
			}
			entry.Directory.flatten(path, files, dirs)
			continue
		}
		if files != nil {
			files[path] = entry.File.Contents
		}
	}
}

// Paths returns the sorted file paths of the descriptor.
func (d Descriptor) Paths() []string {
	files := d.Files()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len counts entries of every depth.
func (d Descriptor) Len() int {
	n := 0
	for _, entry := range d {
		n++
		if entry.IsDir() {
			n += entry.Directory.Len()
		}
	}
	return n
}
