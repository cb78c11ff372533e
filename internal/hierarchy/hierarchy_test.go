package hierarchy_test

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"

	"orgchart/internal/domain"
	"orgchart/internal/hierarchy"
)

func ptr(v int64) *int64 { return &v }

func author(id int64, name, username string, boss int64) domain.Author {
	a := domain.Author{ID: id, Name: name, Username: username, AccountID: id, Age: 30, Height: 1.7}
	if boss != 0 {
		a.BossID = ptr(boss)
	}
	return a
}

// scenarioTree is Jones -> Emily -> Steven and Jones -> Acadia -> Greg.
func scenarioTree() *hierarchy.Tree {
	return hierarchy.New([]domain.Author{
		author(1, "Jonny Jones", "blockbuster", 0),
		author(2, "Emily Hynes", "emily", 1),
		author(3, "Steven Butt", "steven", 2),
		author(4, "Acadia Reed", "acadia", 1),
		author(5, "Greg Lane", "greg", 4),
	})
}

func names(rows []domain.Subordinate) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestScenarioSubordinates(t *testing.T) {
	tree := scenarioTree()
	rows, err := tree.BoundedSubordinates(1, 1, 1)
	if err != nil {
		t.Fatalf("level 1: %v", err)
	}
	if got, want := names(rows), []string{"Emily Hynes", "Acadia Reed"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("level 1: got %v want %v", got, want)
	}
	for _, r := range rows {
		if r.Distance != 1 || r.BossID != 1 || r.BossName != "Jonny Jones" {
			t.Fatalf("unexpected row %+v", r)
		}
	}
	rows, err = tree.BoundedSubordinates(1, 2, 2)
	if err != nil {
		t.Fatalf("level 2: %v", err)
	}
	if got, want := names(rows), []string{"Steven Butt", "Greg Lane"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("level 2: got %v want %v", got, want)
	}
	for _, r := range rows {
		if r.Distance != 2 {
			t.Fatalf("expected distance 2, got %+v", r)
		}
	}
	if rows[0].BossName != "Emily Hynes" || rows[1].BossName != "Acadia Reed" {
		t.Fatalf("unexpected bosses %+v", rows)
	}
}

func TestSubordinateLevelBounds(t *testing.T) {
	tree := scenarioTree()
	rows, err := tree.BoundedSubordinates(1, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := names(rows), []string{"Emily Hynes", "Acadia Reed", "Steven Butt", "Greg Lane"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	rows, err = tree.BoundedSubordinates(1, 0, 0)
	if err != nil || len(rows) != 0 {
		t.Fatalf("end level 0 should return nothing: %v %v", rows, err)
	}
	rows, err = tree.BoundedSubordinates(1, 3, 2)
	if err != nil || len(rows) != 0 {
		t.Fatalf("start > end should return nothing: %v %v", rows, err)
	}
	rows, err = tree.BoundedSubordinates(3, 1, 5)
	if err != nil || len(rows) != 0 {
		t.Fatalf("leaf has no subordinates: %v %v", rows, err)
	}
	if _, err := tree.BoundedSubordinates(1, -1, 1); !errors.Is(err, hierarchy.ErrInvalidLevels) {
		t.Fatalf("expected invalid levels, got %v", err)
	}
	if _, err := tree.BoundedSubordinates(99, 1, 1); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAncestorChain(t *testing.T) {
	tree := scenarioTree()
	got, err := tree.AncestorNames(3)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Emily Hynes", "Jonny Jones"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	root, err := tree.AncestorNames(1)
	if err != nil || len(root) != 0 {
		t.Fatalf("root chain should be empty: %v %v", root, err)
	}
	if _, err := tree.AncestorChain(42); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClosestCommonAncestor(t *testing.T) {
	tree := scenarioTree()
	cases := []struct {
		a, b int64
		want string
	}{
		{3, 5, "blockbuster"},
		{5, 3, "blockbuster"},
		{3, 2, "emily"},
		{2, 3, "emily"},
		{3, 3, "steven"},
		{1, 5, "blockbuster"},
	}
	for _, tc := range cases {
		lead, err := tree.ClosestCommonAncestor(tc.a, tc.b)
		if err != nil {
			t.Fatalf("%d,%d: %v", tc.a, tc.b, err)
		}
		if lead.Username != tc.want {
			t.Fatalf("%d,%d: got %s want %s", tc.a, tc.b, lead.Username, tc.want)
		}
	}
	if _, err := tree.ClosestCommonAncestor(3, 77); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClosestCommonAncestorDisconnected(t *testing.T) {
	tree := hierarchy.New([]domain.Author{
		author(1, "Root A", "a", 0),
		author(2, "Root B", "b", 0),
		author(3, "Under A", "ua", 1),
		author(4, "Under B", "ub", 2),
	})
	if _, err := tree.ClosestCommonAncestor(3, 4); !errors.Is(err, hierarchy.ErrNoCommonAncestor) {
		t.Fatalf("expected no common ancestor, got %v", err)
	}
}

func TestNameResolutionPicksLowestID(t *testing.T) {
	tree := hierarchy.New([]domain.Author{
		author(1, "Jonny Jones", "blockbuster", 0),
		author(7, "Sam Lee", "sam.second", 1),
		author(4, "Sam Lee", "sam.first", 1),
	})
	a, err := tree.Resolve(hierarchy.ByName("Sam Lee"))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != 4 {
		t.Fatalf("expected lowest id 4, got %d", a.ID)
	}
	if _, err := tree.ResolveStrict(hierarchy.ByName("Sam Lee")); !errors.Is(err, hierarchy.ErrAmbiguous) {
		t.Fatalf("expected ambiguous, got %v", err)
	}
	b, err := tree.Resolve(hierarchy.ByUsername("sam.second"))
	if err != nil || b.ID != 7 {
		t.Fatalf("username lookup: %v %v", b, err)
	}
	if _, err := tree.Resolve(hierarchy.ByName("Nobody")); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseRef(t *testing.T) {
	cases := map[string]hierarchy.Ref{
		"id:12":               hierarchy.ByID(12),
		"account:blockbuster": hierarchy.ByUsername("blockbuster"),
		"  Jonny Jones ":      hierarchy.ByName("Jonny Jones"),
	}
	for in, want := range cases {
		got, err := hierarchy.ParseRef(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %+v want %+v", in, got, want)
		}
	}
	for _, bad := range []string{"", "id:x", "id:-3", "account:"} {
		if _, err := hierarchy.ParseRef(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestReserved(t *testing.T) {
	for _, s := range []string{"id:x", " account:emily", "id:", "account:"} {
		if !hierarchy.Reserved(s) {
			t.Fatalf("%q should be reserved", s)
		}
	}
	for _, s := range []string{"Jonny Jones", "identity", "accountant", "ID:3"} {
		if hierarchy.Reserved(s) {
			t.Fatalf("%q should not be reserved", s)
		}
	}
}

func TestPeers(t *testing.T) {
	tree := scenarioTree()
	peers, err := tree.Peers(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].ID != 4 {
		t.Fatalf("unexpected peers %+v", peers)
	}
	rootPeers, err := tree.Peers(1)
	if err != nil || len(rootPeers) != 0 {
		t.Fatalf("root has no peers: %v %v", rootPeers, err)
	}
}

func TestValidate(t *testing.T) {
	if err := scenarioTree().Validate(); err != nil {
		t.Fatalf("scenario should be valid: %v", err)
	}
	if err := hierarchy.New(nil).Validate(); err != nil {
		t.Fatalf("empty tree should be valid: %v", err)
	}
	cases := map[string][]domain.Author{
		hierarchy.KindMultipleRoot: {author(1, "A", "a", 0), author(2, "B", "b", 0)},
		hierarchy.KindDanglingBoss: {author(1, "A", "a", 0), author(2, "B", "b", 9)},
		hierarchy.KindNoRoot:       {author(1, "A", "a", 2), author(2, "B", "b", 1)},
		hierarchy.KindCycle:        {author(1, "A", "a", 0), author(2, "B", "b", 3), author(3, "C", "c", 2)},
	}
	for kind, authors := range cases {
		err := hierarchy.New(authors).Validate()
		var ie *hierarchy.InvariantError
		if !errors.As(err, &ie) {
			t.Fatalf("%s: expected invariant error, got %v", kind, err)
		}
		if ie.Kind != kind {
			t.Fatalf("expected kind %s, got %s", kind, ie.Kind)
		}
		if !errors.Is(err, hierarchy.ErrInvariant) {
			t.Fatalf("%s: expected ErrInvariant match", kind)
		}
	}
}

func TestWalksStopOnCycles(t *testing.T) {
	// 2 and 3 point at each other; 1 is a valid root elsewhere.
	tree := hierarchy.New([]domain.Author{
		author(1, "A", "a", 0),
		author(2, "B", "b", 3),
		author(3, "C", "c", 2),
		author(4, "D", "d", 3),
	})
	if _, err := tree.AncestorChain(4); !errors.Is(err, hierarchy.ErrInvariant) {
		t.Fatalf("ancestor walk: expected invariant error, got %v", err)
	}
	if _, err := tree.BoundedSubordinates(2, 1, 100); !errors.Is(err, hierarchy.ErrInvariant) {
		t.Fatalf("bfs: expected invariant error, got %v", err)
	}
	if _, err := tree.ClosestCommonAncestor(1, 4); !errors.Is(err, hierarchy.ErrInvariant) {
		t.Fatalf("lead walk: expected invariant error, got %v", err)
	}
	if _, err := tree.Subtree(2); !errors.Is(err, hierarchy.ErrInvariant) {
		t.Fatalf("subtree: expected invariant error, got %v", err)
	}
}

func TestCheckReassign(t *testing.T) {
	tree := scenarioTree()
	if err := tree.CheckReassign(5, 2); err != nil {
		t.Fatalf("greg under emily should be allowed: %v", err)
	}
	if err := tree.CheckReassign(2, 3); !errors.Is(err, hierarchy.ErrInvariant) {
		t.Fatalf("emily under steven must be rejected, got %v", err)
	}
	if err := tree.CheckReassign(2, 2); !errors.Is(err, hierarchy.ErrInvariant) {
		t.Fatalf("self boss must be rejected, got %v", err)
	}
	if err := tree.CheckReassign(1, 5); !errors.Is(err, hierarchy.ErrInvariant) {
		t.Fatalf("root move must be rejected, got %v", err)
	}
	if err := tree.CheckReassign(9, 1); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Fatalf("unknown author: got %v", err)
	}
}

func TestSubtree(t *testing.T) {
	node, err := scenarioTree().Subtree(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(node.Children) != 2 || node.Children[0].Name != "Emily Hynes" || node.Children[0].Children[0].Name != "Steven Butt" {
		t.Fatalf("unexpected subtree %+v", node)
	}
}

// randomTree builds a single-rooted tree with depth <= maxDepth and at most
// maxBranch children per node. Ids are shuffled so id order differs from
// insertion order.
func randomTree(r *rand.Rand, maxDepth, maxBranch int) []domain.Author {
	type pending struct {
		id    int64
		depth int
	}
	var authors []domain.Author
	next := int64(1)
	authors = append(authors, author(next, "n1", "u1", 0))
	queue := []pending{{id: next, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for i := r.IntN(maxBranch + 1); i > 0; i-- {
			next++
			// Small name pool so duplicates show up.
			name := fmt.Sprintf("n%d", r.IntN(40))
			authors = append(authors, author(next, name, fmt.Sprintf("u%d", next), cur.id))
			queue = append(queue, pending{id: next, depth: cur.depth + 1})
		}
	}
	perm := r.Perm(len(authors))
	remap := make(map[int64]int64, len(authors))
	for i, a := range authors {
		remap[a.ID] = int64(perm[i] + 1)
	}
	for i := range authors {
		authors[i].ID = remap[authors[i].ID]
		authors[i].AccountID = authors[i].ID
		if authors[i].BossID != nil {
			authors[i].BossID = ptr(remap[*authors[i].BossID])
		}
	}
	return authors
}

func TestWalkAndClosureAgree(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 100; i++ {
		authors := randomTree(r, 6, 4)
		tree := hierarchy.New(authors)
		if err := tree.Validate(); err != nil {
			t.Fatalf("tree %d invalid: %v", i, err)
		}
		for probe := 0; probe < 5; probe++ {
			start := authors[r.IntN(len(authors))].ID
			startLevel := r.IntN(4)
			endLevel := startLevel + r.IntN(4)
			walk, err := tree.BoundedSubordinates(start, startLevel, endLevel)
			if err != nil {
				t.Fatalf("walk: %v", err)
			}
			closure, err := tree.ClosureSubordinates(start, startLevel, endLevel)
			if err != nil {
				t.Fatalf("closure: %v", err)
			}
			if len(walk) != len(closure) || (len(walk) > 0 && !reflect.DeepEqual(walk, closure)) {
				t.Fatalf("tree %d start %d levels %d..%d: walk %v closure %v", i, start, startLevel, endLevel, walk, closure)
			}
			for _, row := range walk {
				if row.Distance < startLevel || row.Distance > endLevel || row.Distance == 0 {
					t.Fatalf("distance %d outside %d..%d", row.Distance, startLevel, endLevel)
				}
				depth, err := tree.Depth(row.ID)
				if err != nil {
					t.Fatal(err)
				}
				startDepth, _ := tree.Depth(start)
				if depth-startDepth != row.Distance {
					t.Fatalf("distance %d does not match depth difference %d", row.Distance, depth-startDepth)
				}
			}
		}
		root, err := tree.Root()
		if err != nil {
			t.Fatal(err)
		}
		direct, err := tree.BoundedSubordinates(root.ID, 1, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(direct) != len(tree.Children(root.ID)) {
			t.Fatalf("root direct children mismatch: %d vs %d", len(direct), len(tree.Children(root.ID)))
		}
		for _, a := range authors {
			chain, err := tree.AncestorChain(a.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(chain) > 0 && chain[len(chain)-1].ID != root.ID {
				t.Fatalf("chain of %d does not end at root", a.ID)
			}
		}
	}
}
