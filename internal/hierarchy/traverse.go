package hierarchy

import (
	"fmt"
	"sort"

	"orgchart/internal/domain"
)

// DefaultLevel is the start and end level used when the caller gives none:
// direct subordinates only.
const DefaultLevel = 1

// BoundedSubordinates walks breadth-first from start (level 0). A node found at
// level L is returned when startLevel <= L <= endLevel; the start itself never is.
// Nodes at endLevel are not expanded. Children are visited in ascending id order.
func (t *Tree) BoundedSubordinates(start int64, startLevel, endLevel int) ([]domain.Subordinate, error) {
	if startLevel < 0 || endLevel < 0 {
		return nil, ErrInvalidLevels
	}
	if _, ok := t.byID[start]; !ok {
		return nil, ErrNotFound
	}
	type item struct {
		id    int64
		level int
	}
	visited := map[int64]bool{start: true}
	queue := []item{{id: start, level: 0}}
	var out []domain.Subordinate
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.level >= endLevel {
			continue
		}
		boss := t.byID[cur.id]
		for _, c := range t.children[cur.id] {
			if visited[c] {
				return nil, cycleAt(c)
			}
			visited[c] = true
			level := cur.level + 1
			if level >= startLevel {
				a := t.byID[c]
				out = append(out, domain.Subordinate{
					Name:     a.Name,
					ID:       a.ID,
					BossName: boss.Name,
					BossID:   boss.ID,
					Distance: level,
				})
			}
			queue = append(queue, item{id: c, level: level})
		}
	}
	return out, nil
}

// ClosureSubordinates computes the same result as BoundedSubordinates without a
// frontier: every author climbs at most endLevel boss links looking for start,
// and the hits are then put into breadth-first order.
func (t *Tree) ClosureSubordinates(start int64, startLevel, endLevel int) ([]domain.Subordinate, error) {
	if startLevel < 0 || endLevel < 0 {
		return nil, ErrInvalidLevels
	}
	if _, ok := t.byID[start]; !ok {
		return nil, ErrNotFound
	}
	var rows []domain.Subordinate
	for _, id := range t.ids {
		if id == start {
			continue
		}
		cur := t.byID[id]
		for hops := 1; hops <= endLevel && cur.BossID != nil; hops++ {
			if *cur.BossID == id {
				break
			}
			if *cur.BossID == start {
				a := t.byID[id]
				b := t.byID[*a.BossID]
				rows = append(rows, domain.Subordinate{Name: a.Name, ID: a.ID, BossName: b.Name, BossID: b.ID, Distance: hops})
				break
			}
			next, ok := t.byID[*cur.BossID]
			if !ok {
				break
			}
			cur = next
		}
	}
	return FilterLevels(OrderBFS(start, rows), startLevel, endLevel), nil
}

// OrderBFS sorts subordinate rows of start into breadth-first order: by
// distance, then by the position of the boss in the previous level, then by id.
// rows must hold every level from 1 up to the deepest one present.
func OrderBFS(start int64, rows []domain.Subordinate) []domain.Subordinate {
	byLevel := map[int][]domain.Subordinate{}
	maxLevel := 0
	for _, r := range rows {
		byLevel[r.Distance] = append(byLevel[r.Distance], r)
		if r.Distance > maxLevel {
			maxLevel = r.Distance
		}
	}
	rank := map[int64]int{start: 0}
	out := make([]domain.Subordinate, 0, len(rows))
	for level := 1; level <= maxLevel; level++ {
		cur := byLevel[level]
		sort.SliceStable(cur, func(i, j int) bool {
			ri, rj := rank[cur[i].BossID], rank[cur[j].BossID]
			if ri != rj {
				return ri < rj
			}
			return cur[i].ID < cur[j].ID
		})
		next := make(map[int64]int, len(cur))
		for i, r := range cur {
			next[r.ID] = i
		}
		rank = next
		out = append(out, cur...)
	}
	return out
}

// FilterLevels keeps rows with startLevel <= distance <= endLevel, preserving order.
func FilterLevels(rows []domain.Subordinate, startLevel, endLevel int) []domain.Subordinate {
	var out []domain.Subordinate
	for _, r := range rows {
		if r.Distance >= startLevel && r.Distance <= endLevel && r.Distance > 0 {
			out = append(out, r)
		}
	}
	return out
}

// AncestorChain returns the bosses of start from the immediate boss up to the
// root. The root's chain is empty.
func (t *Tree) AncestorChain(start int64) ([]domain.Author, error) {
	a, ok := t.byID[start]
	if !ok {
		return nil, ErrNotFound
	}
	visited := map[int64]bool{start: true}
	var chain []domain.Author
	for a.BossID != nil {
		if len(chain) > len(t.ids) {
			return nil, cycleAt(start)
		}
		boss, ok := t.byID[*a.BossID]
		if !ok {
			return nil, &InvariantError{Kind: KindDanglingBoss, AuthorID: a.ID,
				Detail: fmt.Sprintf("boss %d does not exist", *a.BossID)}
		}
		if visited[boss.ID] {
			return nil, cycleAt(boss.ID)
		}
		visited[boss.ID] = true
		chain = append(chain, boss)
		a = boss
	}
	return chain, nil
}

// AncestorNames is AncestorChain reduced to display names.
func (t *Tree) AncestorNames(start int64) ([]string, error) {
	chain, err := t.AncestorChain(start)
	if err != nil {
		return nil, err
	}
	return Names(chain), nil
}

// Depth is the number of boss links between id and the root.
func (t *Tree) Depth(id int64) (int, error) {
	chain, err := t.AncestorChain(id)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// ClosestCommonAncestor returns the nearest author that is both a or one of its
// bosses and b or one of its bosses. Authors are compared by account username,
// the only unique key shared across the tree. a == b yields a itself.
func (t *Tree) ClosestCommonAncestor(a, b int64) (domain.Author, error) {
	first, ok := t.byID[a]
	if !ok {
		return domain.Author{}, fmt.Errorf("author %d: %w", a, ErrNotFound)
	}
	if _, ok := t.byID[b]; !ok {
		return domain.Author{}, fmt.Errorf("author %d: %w", b, ErrNotFound)
	}
	chain, err := t.AncestorChain(a)
	if err != nil {
		return domain.Author{}, err
	}
	leads := make(map[string]bool, len(chain)+1)
	leads[first.Username] = true
	for _, anc := range chain {
		leads[anc.Username] = true
	}
	visited := map[int64]bool{}
	cur := t.byID[b]
	for {
		if leads[cur.Username] {
			return cur, nil
		}
		if visited[cur.ID] {
			return domain.Author{}, cycleAt(cur.ID)
		}
		visited[cur.ID] = true
		if cur.BossID == nil {
			return domain.Author{}, fmt.Errorf("%d and %d: %w", a, b, ErrNoCommonAncestor)
		}
		next, ok := t.byID[*cur.BossID]
		if !ok {
			return domain.Author{}, &InvariantError{Kind: KindDanglingBoss, AuthorID: cur.ID,
				Detail: fmt.Sprintf("boss %d does not exist", *cur.BossID)}
		}
		cur = next
	}
}

// Names maps authors to their display names.
func Names(authors []domain.Author) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		out = append(out, a.Name)
	}
	return out
}
