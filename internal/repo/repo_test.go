package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"orgchart/internal/db"
	"orgchart/internal/domain"
	"orgchart/internal/migrate"
	"orgchart/internal/repo"
)

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, context.Background()
}

func withTx(t *testing.T, r repo.Repo, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	fn(tx)
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func addAuthor(t *testing.T, ctx context.Context, r repo.Repo, tx *sql.Tx, name, username string, boss *int64) int64 {
	t.Helper()
	accID, err := r.InsertAccountTx(ctx, tx, username)
	if err != nil {
		t.Fatalf("account %s: %v", username, err)
	}
	id, err := r.InsertAuthorTx(ctx, tx, domain.Author{Name: name, Age: 40, Height: 1.8, BossID: boss, AccountID: accID})
	if err != nil {
		t.Fatalf("author %s: %v", name, err)
	}
	return id
}

type scenario struct {
	jones, emily, steven, acadia, greg int64
}

func seedScenario(t *testing.T, ctx context.Context, r repo.Repo) scenario {
	var s scenario
	withTx(t, r, func(tx *sql.Tx) {
		s.jones = addAuthor(t, ctx, r, tx, "Jonny Jones", "blockbuster", nil)
		s.emily = addAuthor(t, ctx, r, tx, "Emily Hynes", "emily", &s.jones)
		s.steven = addAuthor(t, ctx, r, tx, "Steven Butt", "steven", &s.emily)
		s.acadia = addAuthor(t, ctx, r, tx, "Acadia Reed", "acadia", &s.jones)
		s.greg = addAuthor(t, ctx, r, tx, "Greg Lane", "greg", &s.acadia)
	})
	return s
}

func TestListAuthorsCarriesUsernames(t *testing.T) {
	r, ctx := newRepo(t)
	s := seedScenario(t, ctx, r)
	authors, err := r.ListAuthors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(authors) != 5 {
		t.Fatalf("expected 5 authors, got %d", len(authors))
	}
	if authors[0].ID != s.jones || authors[0].Username != "blockbuster" || authors[0].BossID != nil {
		t.Fatalf("unexpected root %+v", authors[0])
	}
	if authors[2].BossID == nil || *authors[2].BossID != s.emily {
		t.Fatalf("steven should report emily as boss: %+v", authors[2])
	}
	if _, err := r.GetAuthor(ctx, 999); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	byUser, err := r.GetAuthorByUsername(ctx, "greg")
	if err != nil || byUser.ID != s.greg {
		t.Fatalf("lookup by username: %+v %v", byUser, err)
	}
}

func TestSubordinateClosure(t *testing.T) {
	r, ctx := newRepo(t)
	s := seedScenario(t, ctx, r)
	rows, err := r.SubordinateClosure(ctx, s.jones, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %+v", rows)
	}
	for _, row := range rows {
		switch row.ID {
		case s.emily, s.acadia:
			if row.Distance != 1 || row.BossName != "Jonny Jones" {
				t.Fatalf("unexpected row %+v", row)
			}
		case s.steven, s.greg:
			if row.Distance != 2 {
				t.Fatalf("unexpected row %+v", row)
			}
		default:
			t.Fatalf("unexpected author %+v", row)
		}
	}
	rows, err = r.SubordinateClosure(ctx, s.jones, 1)
	if err != nil || len(rows) != 2 {
		t.Fatalf("depth 1: %+v %v", rows, err)
	}
}

func TestAncestorClosure(t *testing.T) {
	r, ctx := newRepo(t)
	s := seedScenario(t, ctx, r)
	chain, err := r.AncestorClosure(ctx, s.greg, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 || chain[0].ID != s.acadia || chain[1].ID != s.jones {
		t.Fatalf("unexpected chain %+v", chain)
	}
	if chain[1].Username != "blockbuster" {
		t.Fatalf("expected username on chain rows, got %+v", chain[1])
	}
	root, err := r.AncestorClosure(ctx, s.jones, 10)
	if err != nil || len(root) != 0 {
		t.Fatalf("root chain should be empty: %+v %v", root, err)
	}
}

func TestTaskRowsAndComments(t *testing.T) {
	r, ctx := newRepo(t)
	s := seedScenario(t, ctx, r)
	var shared, solo int64
	withTx(t, r, func(tx *sql.Tx) {
		var err error
		shared, err = r.InsertTaskTx(ctx, tx, domain.Task{Headline: "Quarterly plan", Content: "draft", CreationDate: "2024-01-01T00:00:00Z"})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.AddTaskOwnersTx(ctx, tx, shared, []int64{s.emily, s.greg}); err != nil {
			t.Fatal(err)
		}
		solo, err = r.InsertTaskTx(ctx, tx, domain.Task{Headline: "Quarterly plan", Content: "second", CreationDate: "2024-01-02T00:00:00Z"})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.AddTaskOwnersTx(ctx, tx, solo, []int64{s.steven}); err != nil {
			t.Fatal(err)
		}
		if _, err := r.InsertCommentTx(ctx, tx, domain.Comment{Content: "looks good", TaskID: &shared, AuthorID: s.jones}); err != nil {
			t.Fatal(err)
		}
	})

	rows, err := r.TaskRows(ctx, repo.TaskRowFilter{AuthorNames: []string{"Emily Hynes", "Greg Lane"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].AuthorID != s.emily || rows[1].AuthorID != s.greg {
		t.Fatalf("expected one row per matching owner, got %+v", rows)
	}
	if rows[0].Username != "emily" || rows[0].State != domain.StateNew {
		t.Fatalf("unexpected row %+v", rows[0])
	}
	if err := r.AttachTaskComments(ctx, rows); err != nil {
		t.Fatal(err)
	}
	if len(rows[0].Comments) != 1 || rows[0].Comments[0].AuthorName != "Jonny Jones" {
		t.Fatalf("expected jones' comment, got %+v", rows[0].Comments)
	}

	none, err := r.TaskRows(ctx, repo.TaskRowFilter{AuthorNames: []string{}})
	if err != nil || len(none) != 0 {
		t.Fatalf("empty name set should match nothing: %+v %v", none, err)
	}
	all, err := r.TaskRows(ctx, repo.TaskRowFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("all rows: %+v %v", all, err)
	}
	byID, err := r.TaskRows(ctx, repo.TaskRowFilter{AuthorIDs: []int64{s.steven}})
	if err != nil || len(byID) != 1 || byID[0].TaskID != solo {
		t.Fatalf("by id: %+v %v", byID, err)
	}

	withTx(t, r, func(tx *sql.Tx) {
		task, err := r.FindTaskByHeadlineTx(ctx, tx, "Quarterly plan")
		if err != nil {
			t.Fatal(err)
		}
		if task.ID != shared || len(task.OwnerIDs) != 2 {
			t.Fatalf("expected lowest id task with owners, got %+v", task)
		}
		if err := r.UpdateTaskStateTx(ctx, tx, task.ID, domain.StateDelayed); err != nil {
			t.Fatal(err)
		}
		if _, err := r.FindTaskByHeadlineTx(ctx, tx, "missing"); !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
	got, err := r.GetTask(ctx, shared)
	if err != nil || got.State != domain.StateDelayed {
		t.Fatalf("state not persisted: %+v %v", got, err)
	}
}

func TestCommentNeedsExactlyOneParent(t *testing.T) {
	r, ctx := newRepo(t)
	s := seedScenario(t, ctx, r)
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if _, err := r.InsertCommentTx(ctx, tx, domain.Comment{Content: "orphan", AuthorID: s.jones}); err == nil {
		t.Fatalf("expected check constraint failure")
	}
}

func TestPostsByAuthor(t *testing.T) {
	r, ctx := newRepo(t)
	s := seedScenario(t, ctx, r)
	withTx(t, r, func(tx *sql.Tx) {
		postID, err := r.InsertPostTx(ctx, tx, domain.Post{Headline: "Hello", Content: "first post", AuthorID: s.acadia})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.InsertCommentTx(ctx, tx, domain.Comment{Content: "welcome", PostID: &postID, AuthorID: s.greg}); err != nil {
			t.Fatal(err)
		}
	})
	posts, err := r.PostsByAuthor(ctx, s.acadia)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || len(posts[0].Comments) != 1 || posts[0].Comments[0].AuthorName != "Greg Lane" {
		t.Fatalf("unexpected posts %+v", posts)
	}
}
