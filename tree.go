// workspace tree: hierarchical grouping of workspace ids by path
// segment, for the sidebar's tree mode.
//
// every node is addressed by its accumulated path ("apps", "apps/web").
// toggles look the node up by that path; nothing is ever located by
// its rendered text or row position.

package main

import (
	"cmp"
	"slices"
	"strings"
)

// selfSegment holds a workspace whose directory also contains other
// workspaces, e.g. "tools" next to "tools/cli". it keeps directory
// nodes free of workspace ids.
const selfSegment = "."

type treeNode struct {
	segment  string
	path     string
	id       workspaceID // leaves only
	children map[string]*treeNode
	expanded bool
}

func (n *treeNode) isDir() bool  { return len(n.children) > 0 }
func (n *treeNode) isLeaf() bool { return n.id != "" }

// sortedChildren orders directories before leaves, then by segment.
func (n *treeNode) sortedChildren() []*treeNode {
	kids := make([]*treeNode, 0, len(n.children))
	for _, c := range n.children {
		kids = append(kids, c)
	}
	slices.SortFunc(kids, func(a, b *treeNode) int {
		if a.isDir() != b.isDir() {
			if a.isDir() {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.segment, b.segment)
	})
	return kids
}

type workspaceTree struct {
	root  *treeNode
	nodes map[string]*treeNode // path -> node
}

// buildTree inserts every id, one node per path segment. the result
// does not depend on insertion order.
func buildTree(ids []workspaceID) *workspaceTree {
	t := &workspaceTree{
		root:  &treeNode{children: make(map[string]*treeNode), expanded: true},
		nodes: make(map[string]*treeNode),
	}
	for _, id := range ids {
		t.insert(id)
	}
	return t
}

func (t *workspaceTree) insert(id workspaceID) {
	node := t.root
	for _, seg := range strings.Split(id, "/") {
		if seg == "" {
			continue
		}
		if node.isLeaf() && node != t.root {
			t.demote(node)
		}
		node = t.child(node, seg)
	}
	if node == t.root {
		return
	}
	if node.isDir() {
		self := t.child(node, selfSegment)
		self.id = id
		return
	}
	node.id = id
}

// demote moves a leaf's workspace into a "." child so the node can
// become a directory.
func (t *workspaceTree) demote(node *treeNode) {
	id := node.id
	node.id = ""
	t.child(node, selfSegment).id = id
}

func (t *workspaceTree) child(parent *treeNode, seg string) *treeNode {
	if c, ok := parent.children[seg]; ok {
		return c
	}
	p := seg
	if parent != t.root {
		p = parent.path + "/" + seg
	}
	c := &treeNode{segment: seg, path: p, children: make(map[string]*treeNode), expanded: true}
	parent.children[seg] = c
	t.nodes[p] = c
	return c
}

// node returns the node at path, or nil.
func (t *workspaceTree) node(path string) *treeNode {
	return t.nodes[path]
}

// toggle flips the expanded flag of the directory at path. reports
// false if path isn't a directory.
func (t *workspaceTree) toggle(path string) bool {
	n := t.nodes[path]
	if n == nil || !n.isDir() {
		return false
	}
	n.expanded = !n.expanded
	return true
}

// rows flattens the tree depth-first. a collapsed directory yields its
// own row and nothing below it.
func (t *workspaceTree) rows() []sidebarRow {
	var out []sidebarRow
	var walk func(n *treeNode, depth int)
	walk = func(n *treeNode, depth int) {
		for _, c := range n.sortedChildren() {
			if c.isDir() {
				out = append(out, sidebarRow{
					path:      c.path,
					label:     c.segment,
					depth:     depth,
					dir:       true,
					collapsed: !c.expanded,
				})
				if c.expanded {
					walk(c, depth+1)
				}
				continue
			}
			out = append(out, sidebarRow{path: c.path, id: c.id, label: c.segment, depth: depth})
		}
	}
	walk(t.root, 0)
	return out
}

// leafCount counts workspaces regardless of expansion state.
func (t *workspaceTree) leafCount() int {
	n := 0
	for _, node := range t.nodes {
		if node.isLeaf() {
			n++
		}
	}
	return n
}

// flatRows is the flat-mode row list: one row per id in discovery order.
func flatRows(ids []workspaceID) []sidebarRow {
	out := make([]sidebarRow, len(ids))
	for i, id := range ids {
		out[i] = sidebarRow{path: id, id: id, label: id}
	}
	return out
}
