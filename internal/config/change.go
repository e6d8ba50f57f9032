package config

import "sort"

// NodeKind distinguishes the tree shapes the change extractor needs to
// reason about.
type NodeKind int

const (
	// KindLeaf is a scalar value.
	KindLeaf NodeKind = iota
	// KindContainer is a non-presence container: it exists only as a
	// grouping of its children and has no callback of its own.
	KindContainer
	// KindPresenceContainer is a container whose own existence is
	// meaningful (it may carry its own Create/Delete callback).
	KindPresenceContainer
	// KindListEntry is one entry of a keyed list (e.g. one neighbor).
	KindListEntry
)

// Node is one data-path node in a configuration tree. Trees are kept
// flattened: Tree.Nodes maps a fully-qualified path to its Node, with
// Children holding the immediate child paths for traversal.
type Node struct {
	Path      string
	Kind      NodeKind
	IsDefault bool
	Value     any
	Children  []string
}

// Tree is a flattened configuration data tree as produced by the
// northbound frontend's diff input.
type Tree struct {
	Nodes map[string]*Node
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{Nodes: make(map[string]*Node)}
}

// Put inserts or replaces a node and threads it into its parent's
// Children list.
func (t *Tree) Put(parent string, n *Node) {
	t.Nodes[n.Path] = n
	if parent == "" {
		return
	}
	p, ok := t.Nodes[parent]
	if !ok {
		return
	}
	for _, c := range p.Children {
		if c == n.Path {
			return
		}
	}
	p.Children = append(p.Children, n.Path)
}

// Change is one (callback-key, data-path) pair produced by extraction,
// ready for the commit engine to dispatch (spec.md section 4.3,
// "Change extraction").
type Change struct {
	Key  CallbackKey
	Path string
}

// ExtractChanges diffs prev against next and produces an ordered list
// of changes, per spec.md section 4.3:
//
//   - a tree-level Create expands into Create-or-Modify per descendant
//     leaf that has a registered callback and is not a default value;
//   - a tree-level Delete produces one Delete per path that has a
//     Delete callback, recursing into non-presence containers that
//     lack one;
//   - a Replace becomes Modify if a Modify callback exists.
//
// The result is sorted by path so commit ordering is deterministic
// across runs with the same diff.
func ExtractChanges(reg *Registry, prev, next *Tree) []Change {
	var changes []Change

	for path, nextNode := range next.Nodes {
		prevNode, existed := prev.Nodes[path]

		switch {
		case !existed:
			// A brand new path: expand its subtree. Every new path is
			// expanded, including descendants of a new subtree that are
			// also reached from their ancestor; dedupe drops the repeats.
			changes = append(changes, expandCreate(reg, next, nextNode)...)

		case existed && !nodeEqual(prevNode, nextNode):
			// Replace: becomes Modify if a Modify callback exists.
			if reg.hasCallback(path, OpModify) {
				changes = append(changes, Change{
					Key:  CallbackKey{Path: path, Op: OpModify},
					Path: path,
				})
			}
		}
	}

	for path, prevNode := range prev.Nodes {
		if _, stillThere := next.Nodes[path]; stillThere {
			continue
		}
		changes = append(changes, expandDelete(reg, prev, prevNode)...)
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Path != changes[j].Path {
			return changes[i].Path < changes[j].Path
		}
		return changes[i].Key.Op < changes[j].Key.Op
	})

	return dedupe(changes)
}

// expandCreate walks nextNode's subtree (rooted at a newly appeared
// path) and emits one Create-or-Modify change per descendant leaf that
// carries a registered callback and is not a default value.
func expandCreate(reg *Registry, next *Tree, n *Node) []Change {
	var changes []Change

	if n.Kind == KindLeaf {
		if n.IsDefault {
			return nil
		}
		if reg.hasCallback(n.Path, OpCreate) {
			changes = append(changes, Change{Key: CallbackKey{Path: n.Path, Op: OpCreate}, Path: n.Path})
		} else if reg.hasCallback(n.Path, OpModify) {
			changes = append(changes, Change{Key: CallbackKey{Path: n.Path, Op: OpModify}, Path: n.Path})
		}
		return changes
	}

	// Containers/list-entries themselves may also carry a Create
	// callback (e.g. allocating the neighbor record before its leaves
	// are populated).
	if reg.hasCallback(n.Path, OpCreate) {
		changes = append(changes, Change{Key: CallbackKey{Path: n.Path, Op: OpCreate}, Path: n.Path})
	}

	for _, childPath := range n.Children {
		child, ok := next.Nodes[childPath]
		if !ok {
			continue
		}
		changes = append(changes, expandCreate(reg, next, child)...)
	}

	return changes
}

// expandDelete walks prevNode's subtree and emits one Delete change per
// path that has a Delete callback, recursing into non-presence
// containers that lack one (spec.md section 4.3).
func expandDelete(reg *Registry, prev *Tree, n *Node) []Change {
	var changes []Change

	hasDelete := reg.hasCallback(n.Path, OpDelete)
	if hasDelete {
		changes = append(changes, Change{Key: CallbackKey{Path: n.Path, Op: OpDelete}, Path: n.Path})
	}

	// Presence containers and list entries with their own Delete
	// callback are assumed to tear down their children as part of
	// that callback; containers without one are transparent and the
	// walk continues into their children.
	if hasDelete && n.Kind != KindContainer {
		return changes
	}

	for _, childPath := range n.Children {
		child, ok := prev.Nodes[childPath]
		if !ok {
			continue
		}
		changes = append(changes, expandDelete(reg, prev, child)...)
	}

	return changes
}

// nodeEqual reports whether two nodes at the same path carry the same
// leaf value. Containers and list entries are always considered
// "equal" here since a genuine structural change surfaces as their
// children appearing/disappearing instead.
func nodeEqual(a, b *Node) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind != KindLeaf {
		return true
	}
	return a.Value == b.Value
}

// dedupe removes duplicate (path, op) entries. They arise because
// ExtractChanges expands every added (or removed) path on its own, so a
// node under a newly added (or removed) ancestor is visited once from the
// ancestor and once directly.
func dedupe(changes []Change) []Change {
	seen := make(map[Change]bool, len(changes))
	out := changes[:0]
	for _, c := range changes {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
