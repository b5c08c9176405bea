package catalog

import (
	"sort"

	"github.com/ariefcatur/go-storefront/internal/apperr"
)

// Tree indexes a flat category list by id. Nodes refer to each other by id only.
type Tree struct {
	nodes    []Category
	index    map[int64]int
	children map[int64][]int64
	roots    []int64
}

func NewTree(categories []Category) *Tree {
	t := &Tree{
		nodes:    append([]Category(nil), categories...),
		index:    make(map[int64]int, len(categories)),
		children: make(map[int64][]int64),
	}
	sort.Slice(t.nodes, func(i, j int) bool { return t.nodes[i].Name < t.nodes[j].Name })
	for i, c := range t.nodes {
		t.index[c.ID] = i
	}
	for _, c := range t.nodes {
		if c.ParentID == nil {
			t.roots = append(t.roots, c.ID)
			continue
		}
		if _, ok := t.index[*c.ParentID]; !ok {
			// dangling parent: treat as a root so it stays reachable
			t.roots = append(t.roots, c.ID)
			continue
		}
		t.children[*c.ParentID] = append(t.children[*c.ParentID], c.ID)
	}
	return t
}

func (t *Tree) Get(id int64) (Category, bool) {
	i, ok := t.index[id]
	if !ok {
		return Category{}, false
	}
	return t.nodes[i], true
}

func (t *Tree) Roots() []Category { return t.collect(t.roots) }

func (t *Tree) Children(id int64) []Category { return t.collect(t.children[id]) }

// Descendants returns every category below id, breadth first, excluding id itself.
func (t *Tree) Descendants(id int64) []int64 {
	var out []int64
	seen := map[int64]bool{id: true}
	queue := append([]int64(nil), t.children[id]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, t.children[cur]...)
	}
	return out
}

// Subtree is id followed by its descendants.
func (t *Tree) Subtree(id int64) []int64 {
	return append([]int64{id}, t.Descendants(id)...)
}

// Path lists the categories from the root down to id.
func (t *Tree) Path(id int64) []Category {
	var rev []Category
	seen := map[int64]bool{}
	for cur, ok := t.Get(id); ok && !seen[cur.ID]; {
		seen[cur.ID] = true
		rev = append(rev, cur)
		if cur.ParentID == nil {
			break
		}
		cur, ok = t.Get(*cur.ParentID)
	}
	out := make([]Category, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out
}

// ValidateParent checks that giving category id the parent would keep the tree acyclic.
// id is 0 for a category that does not exist yet.
func (t *Tree) ValidateParent(id int64, parent *int64) error {
	if parent == nil {
		return nil
	}
	if *parent == id {
		return apperr.Invalid("parent_id", "A category cannot be its own parent.")
	}
	if _, ok := t.index[*parent]; !ok {
		return apperr.Invalid("parent_id", "Select a valid parent category.")
	}
	if id == 0 {
		return nil
	}
	seen := map[int64]bool{}
	for cur := parent; cur != nil && !seen[*cur]; {
		if *cur == id {
			return apperr.Invalid("parent_id", "A category cannot be placed under one of its own subcategories.")
		}
		seen[*cur] = true
		c, ok := t.Get(*cur)
		if !ok {
			break
		}
		cur = c.ParentID
	}
	return nil
}

func (t *Tree) collect(ids []int64) []Category {
	out := make([]Category, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.nodes[t.index[id]])
	}
	return out
}
