// Package hierarchy holds an immutable snapshot of the author tree and the
// traversal algorithms that run over it. Nothing here touches the store.
package hierarchy

import (
	"fmt"
	"sort"

	"orgchart/internal/domain"
)

// Tree indexes a set of authors by id, boss, name and account username.
// Boss links are plain ids; children are derived once at construction.
type Tree struct {
	byID       map[int64]domain.Author
	children   map[int64][]int64
	byName     map[string][]int64
	byUsername map[string]int64
	roots      []int64
	ids        []int64
}

// New builds a snapshot. Authors are copied; later changes to the slice are not seen.
func New(authors []domain.Author) *Tree {
	t := &Tree{
		byID:       make(map[int64]domain.Author, len(authors)),
		children:   make(map[int64][]int64),
		byName:     make(map[string][]int64),
		byUsername: make(map[string]int64, len(authors)),
	}
	for _, a := range authors {
		t.byID[a.ID] = a
		t.ids = append(t.ids, a.ID)
	}
	sort.Slice(t.ids, func(i, j int) bool { return t.ids[i] < t.ids[j] })
	for _, id := range t.ids {
		a := t.byID[id]
		if a.BossID == nil {
			t.roots = append(t.roots, id)
		} else {
			t.children[*a.BossID] = append(t.children[*a.BossID], id)
		}
		t.byName[a.Name] = append(t.byName[a.Name], id)
		if a.Username != "" {
			t.byUsername[a.Username] = id
		}
	}
	return t
}

func (t *Tree) Len() int { return len(t.ids) }

func (t *Tree) Author(id int64) (domain.Author, bool) {
	a, ok := t.byID[id]
	return a, ok
}

// Authors returns every author ordered by id.
func (t *Tree) Authors() []domain.Author {
	out := make([]domain.Author, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, t.byID[id])
	}
	return out
}

// Children returns the direct subordinates of id in ascending id order.
func (t *Tree) Children(id int64) []int64 {
	return t.children[id]
}

// Boss returns the author's boss; ok is false for the root or unknown ids.
func (t *Tree) Boss(id int64) (domain.Author, bool) {
	a, ok := t.byID[id]
	if !ok || a.BossID == nil {
		return domain.Author{}, false
	}
	b, ok := t.byID[*a.BossID]
	return b, ok
}

// Root returns the single root. It fails unless exactly one author has no boss.
func (t *Tree) Root() (domain.Author, error) {
	switch len(t.roots) {
	case 0:
		return domain.Author{}, &InvariantError{Kind: KindNoRoot, Detail: "no author without a boss"}
	case 1:
		return t.byID[t.roots[0]], nil
	default:
		return domain.Author{}, &InvariantError{Kind: KindMultipleRoot, AuthorID: t.roots[1],
			Detail: fmt.Sprintf("%d authors have no boss", len(t.roots))}
	}
}

// Peers returns the other subordinates of id's boss.
func (t *Tree) Peers(id int64) ([]domain.Author, error) {
	a, ok := t.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.BossID == nil {
		return nil, nil
	}
	var out []domain.Author
	for _, c := range t.children[*a.BossID] {
		if c != id {
			out = append(out, t.byID[c])
		}
	}
	return out, nil
}

// Resolve finds the author a reference points at. Names are not unique:
// a name shared by several authors resolves to the one with the lowest id.
func (t *Tree) Resolve(ref Ref) (domain.Author, error) {
	return t.resolve(ref, false)
}

// ResolveStrict is Resolve but rejects names shared by several authors.
func (t *Tree) ResolveStrict(ref Ref) (domain.Author, error) {
	return t.resolve(ref, true)
}

func (t *Tree) resolve(ref Ref, strict bool) (domain.Author, error) {
	switch {
	case ref.ID != 0:
		a, ok := t.byID[ref.ID]
		if !ok {
			return domain.Author{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return a, nil
	case ref.Username != "":
		id, ok := t.byUsername[ref.Username]
		if !ok {
			return domain.Author{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return t.byID[id], nil
	case ref.Name != "":
		ids := t.byName[ref.Name]
		if len(ids) == 0 {
			return domain.Author{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		if strict && len(ids) > 1 {
			return domain.Author{}, fmt.Errorf("%q matches %d authors: %w", ref.Name, len(ids), ErrAmbiguous)
		}
		return t.byID[ids[0]], nil
	default:
		return domain.Author{}, fmt.Errorf("empty reference: %w", ErrNotFound)
	}
}

// Validate checks that the boss links form one rooted tree: every boss exists,
// exactly one root, no cycles and every author reachable from the root.
// An empty tree is valid.
func (t *Tree) Validate() error {
	if len(t.ids) == 0 {
		return nil
	}
	for _, id := range t.ids {
		a := t.byID[id]
		if a.BossID == nil {
			continue
		}
		if _, ok := t.byID[*a.BossID]; !ok {
			return &InvariantError{Kind: KindDanglingBoss, AuthorID: id,
				Detail: fmt.Sprintf("boss %d does not exist", *a.BossID)}
		}
	}
	root, err := t.Root()
	if err != nil {
		return err
	}
	seen := make(map[int64]bool, len(t.ids))
	seen[root.ID] = true
	queue := []int64{root.ID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range t.children[cur] {
			if seen[c] {
				return cycleAt(c)
			}
			seen[c] = true
			queue = append(queue, c)
		}
	}
	if len(seen) == len(t.ids) {
		return nil
	}
	// With one root and no dangling bosses, anything unreached sits on a cycle.
	for _, id := range t.ids {
		if seen[id] {
			continue
		}
		if _, err := t.AncestorChain(id); err != nil {
			return err
		}
		return &InvariantError{Kind: KindUnreachable, AuthorID: id, Detail: "not reachable from the root"}
	}
	return nil
}

// CheckReassign reports whether moving id under newBoss keeps the tree valid.
func (t *Tree) CheckReassign(id, newBoss int64) error {
	a, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("author %d: %w", id, ErrNotFound)
	}
	if _, ok := t.byID[newBoss]; !ok {
		return fmt.Errorf("boss %d: %w", newBoss, ErrNotFound)
	}
	if a.BossID == nil {
		return &InvariantError{Kind: KindRootReparent, AuthorID: id, Detail: "the root cannot be given a boss"}
	}
	if newBoss == id {
		return &InvariantError{Kind: KindCycle, AuthorID: id, Detail: "an author cannot be its own boss"}
	}
	chain, err := t.AncestorChain(newBoss)
	if err != nil {
		return err
	}
	for _, anc := range chain {
		if anc.ID == id {
			return &InvariantError{Kind: KindCycle, AuthorID: id,
				Detail: fmt.Sprintf("author %d is a subordinate of %d", newBoss, id)}
		}
	}
	return nil
}

// Node is a nested view of a subtree.
type Node struct {
	domain.Author
	Children []Node `json:"children,omitempty"`
}

// Subtree returns the nested subtree rooted at id.
func (t *Tree) Subtree(id int64) (Node, error) {
	if _, ok := t.byID[id]; !ok {
		return Node{}, ErrNotFound
	}
	seen := map[int64]bool{}
	var build func(id int64) (Node, error)
	build = func(id int64) (Node, error) {
		if seen[id] {
			return Node{}, cycleAt(id)
		}
		seen[id] = true
		n := Node{Author: t.byID[id]}
		for _, c := range t.children[id] {
			child, err := build(c)
			if err != nil {
				return Node{}, err
			}
			n.Children = append(n.Children, child)
		}
		return n, nil
	}
	return build(id)
}
