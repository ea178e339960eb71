// Package filetree folds build steps into the canonical project tree.
//
// Every node path is unique within a tree and doubles as the upsert key. A
// path index is kept next to the nested nodes so lookups never rescan children.
package filetree

import (
	"strings"

	"sitesmith/internal/steps"
)

// Kind distinguishes files from folders.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Node is one file or folder. Children are owned exclusively by their parent.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Kind     Kind    `json:"type"`
	Content  string  `json:"content,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Tree is the synthesized project. The zero value is not usable; call New.
type Tree struct {
	roots []*Node
	index map[string]*Node
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{index: make(map[string]*Node)}
}

// Rejection records a step the tree refused.
type Rejection struct {
	Index int
	Step  steps.Step
	Err   error
}

// ApplyResult summarises one fold.
type ApplyResult struct {
	Applied  []int
	Rejected []Rejection
	Changed  bool
}

// Apply folds a single step into the tree. Shell steps and unknown kinds are
// accepted as no-ops. A conflicting or invalid step leaves the tree unchanged.
func (t *Tree) Apply(s steps.Step) error {
	_, err := t.apply(s)
	return err
}

// ApplySteps folds the pending steps of list in order. Step statuses are not
// modified; flipping consumed steps to completed is the caller's job.
func (t *Tree) ApplySteps(list []steps.Step) ApplyResult {
	var res ApplyResult
	for i, s := range list {
		if s.Status != steps.StatusPending {
			continue
		}
		changed, err := t.apply(s)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Step: s, Err: err})
			continue
		}
		res.Applied = append(res.Applied, i)
		if changed {
			res.Changed = true
		}
	}
	return res
}

func (t *Tree) apply(s steps.Step) (bool, error) {
	switch s.Kind {
	case steps.KindCreateFile:
		return t.upsert(s.Path, KindFile, s.Content)
	case steps.KindCreateFolder:
		return t.upsert(s.Path, KindFolder, "")
	default:
		return false, nil
	}
}

func (t *Tree) upsert(path string, kind Kind, content string) (bool, error) {
	clean, err := Clean(path)
	if err != nil {
		return false, err
	}
	segs := strings.Split(clean, "/")
	if err := t.check(segs, kind); err != nil {
		return false, err
	}

	changed := false
	var parent *Node
	for i := range segs {
		prefix := strings.Join(segs[:i+1], "/")
		node := t.index[prefix]
		last := i == len(segs)-1
		if node == nil {
			node = &Node{Name: segs[i], Path: prefix, Kind: KindFolder}
			if last {
				node.Kind = kind
				node.Content = content
			}
			t.attach(parent, node)
			changed = true
		} else if last && kind == KindFile && node.Content != content {
			node.Content = content
			changed = true
		}
		parent = node
	}
	return changed, nil
}

// check validates the whole path before anything is created.
func (t *Tree) check(segs []string, kind Kind) error {
	for i := range segs {
		prefix := strings.Join(segs[:i+1], "/")
		node := t.index[prefix]
		if node == nil {
			return nil
		}
		want := KindFolder
		if i == len(segs)-1 {
			want = kind
		}
		if node.Kind != want {
			return &ConflictError{Path: prefix, Existing: node.Kind, Requested: want}
		}
	}
	return nil
}

func (t *Tree) attach(parent, node *Node) {
	if parent == nil {
		t.roots = append(t.roots, node)
	} else {
		parent.Children = append(parent.Children, node)
	}
	t.index[node.Path] = node
}

// Clean normalises a step path to the tree's key form: no leading slash, no
// empty or "." segments.
func Clean(path string) (string, error) {
	raw := strings.TrimSpace(path)
	var segs []string
	for _, seg := range strings.Split(raw, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", &PathError{Path: path, Reason: "parent segments are not allowed"}
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return "", &PathError{Path: path, Reason: "path is empty"}
	}
	return strings.Join(segs, "/"), nil
}

// Roots returns the top-level nodes in insertion order.
func (t *Tree) Roots() []*Node {
	out := make([]*Node, len(t.roots))
	copy(out, t.roots)
	return out
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.index)
}

// Empty reports whether the tree has no nodes.
func (t *Tree) Empty() bool {
	return len(t.index) == 0
}

// Find resolves a path to its node, or nil.
func (t *Tree) Find(path string) *Node {
	clean, err := Clean(path)
	if err != nil {
		return nil
	}
	return t.index[clean]
}

// Walk visits nodes depth first in insertion order. Returning an error stops the walk.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	for _, root := range t.roots {
		if err := walk(root, 0, fn); err != nil {
			return err
		}
	}
	return nil
}

func walk(n *Node, depth int, fn func(*Node, int) error) error {
	if err := fn(n, depth); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := walk(child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Files returns the file nodes in walk order.
func (t *Tree) Files() []*Node {
	var files []*Node
	_ = t.Walk(func(n *Node, _ int) error {
		if n.Kind == KindFile {
			files = append(files, n)
		}
		return nil
	})
	return files
}

// Clone returns a deep copy that shares nothing with t.
func (t *Tree) Clone() *Tree {
	out := New()
	for _, root := range t.roots {
		out.roots = append(out.roots, out.copyNode(root))
	}
	return out
}

func (t *Tree) copyNode(n *Node) *Node {
	cp := &Node{Name: n.Name, Path: n.Path, Kind: n.Kind, Content: n.Content}
	for _, child := range n.Children {
		cp.Children = append(cp.Children, t.copyNode(child))
	}
	t.index[cp.Path] = cp
	return cp
}
