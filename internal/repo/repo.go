package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"orgchart/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// jsonList encodes values for use with json_each, so any number of ids or
// names binds as a single parameter.
func jsonList[T any](values []T) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

const authorColumns = `a.id,a.name,a.age,a.height,a.boss_id,a.account_id,acc.username`

const authorFrom = `FROM authors a JOIN accounts acc ON acc.id=a.account_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthor(row rowScanner) (domain.Author, error) {
	var a domain.Author
	var boss sql.NullInt64
	err := row.Scan(&a.ID, &a.Name, &a.Age, &a.Height, &boss, &a.AccountID, &a.Username)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if boss.Valid {
		v := boss.Int64
		a.BossID = &v
	}
	return a, nil
}

func collectAuthors(rows *sql.Rows) ([]domain.Author, error) {
	defer rows.Close()
	var res []domain.Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// InsertAccountTx creates an account and returns its id.
func (r Repo) InsertAccountTx(ctx context.Context, tx *sql.Tx, username string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO accounts(username) VALUES (?)`, username)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UsernameExistsTx(ctx context.Context, tx *sql.Tx, username string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE username=?`, username).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) InsertAuthorTx(ctx context.Context, tx *sql.Tx, a domain.Author) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO authors(name,age,height,boss_id,account_id) VALUES (?,?,?,?,?)`,
		a.Name, a.Age, a.Height, nullableInt64Ptr(a.BossID), a.AccountID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetAuthor(ctx context.Context, id int64) (domain.Author, error) {
	return getAuthor(ctx, r.DB, id)
}

func (r Repo) GetAuthorTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Author, error) {
	return getAuthor(ctx, tx, id)
}

func getAuthor(ctx context.Context, q queryer, id int64) (domain.Author, error) {
	return scanAuthor(q.QueryRowContext(ctx, `SELECT `+authorColumns+` `+authorFrom+` WHERE a.id=?`, id))
}

func (r Repo) GetAuthorByUsername(ctx context.Context, username string) (domain.Author, error) {
	return scanAuthor(r.DB.QueryRowContext(ctx, `SELECT `+authorColumns+` `+authorFrom+` WHERE acc.username=?`, username))
}

// AuthorsByName returns every author with the given display name, lowest id first.
func (r Repo) AuthorsByName(ctx context.Context, name string) ([]domain.Author, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+authorColumns+` `+authorFrom+` WHERE a.name=? ORDER BY a.id`, name)
	if err != nil {
		return nil, err
	}
	return collectAuthors(rows)
}

// ListAuthors is the bulk snapshot read: every author with its username in one query.
func (r Repo) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	return listAuthors(ctx, r.DB)
}

func (r Repo) ListAuthorsTx(ctx context.Context, tx *sql.Tx) ([]domain.Author, error) {
	return listAuthors(ctx, tx)
}

func listAuthors(ctx context.Context, q queryer) ([]domain.Author, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+authorColumns+` `+authorFrom+` ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	return collectAuthors(rows)
}

func (r Repo) CountAuthors(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM authors`).Scan(&n)
	return n, err
}

func (r Repo) CountRootsTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM authors WHERE boss_id IS NULL`).Scan(&n)
	return n, err
}

func (r Repo) UpdateAuthorBossTx(ctx context.Context, tx *sql.Tx, id, bossID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE authors SET boss_id=? WHERE id=?`, bossID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertPostTx(ctx context.Context, tx *sql.Tx, p domain.Post) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO posts(headline,content,author_id) VALUES (?,?,?)`, p.Headline, p.Content, p.AuthorID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetPost(ctx context.Context, id int64) (domain.Post, error) {
	return getPost(ctx, r.DB, id)
}

func (r Repo) GetPostTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Post, error) {
	return getPost(ctx, tx, id)
}

func getPost(ctx context.Context, q queryer, id int64) (domain.Post, error) {
	var p domain.Post
	err := q.QueryRowContext(ctx, `SELECT id,headline,content,author_id FROM posts WHERE id=?`, id).
		Scan(&p.ID, &p.Headline, &p.Content, &p.AuthorID)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// PostsByAuthor lists an author's posts with their comments, fetched in one extra query.
func (r Repo) PostsByAuthor(ctx context.Context, authorID int64) ([]domain.Post, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,headline,content,author_id FROM posts WHERE author_id=? ORDER BY id`, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []domain.Post
	var ids []int64
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.Headline, &p.Content, &p.AuthorID); err != nil {
			return nil, err
		}
		posts = append(posts, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return posts, nil
	}
	comments, err := r.CommentsForPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Comments = comments[posts[i].ID]
	}
	return posts, nil
}

func (r Repo) InsertCommentTx(ctx context.Context, tx *sql.Tx, c domain.Comment) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO comments(content,task_id,post_id,author_id) VALUES (?,?,?,?)`,
		c.Content, nullableInt64Ptr(c.TaskID), nullableInt64Ptr(c.PostID), c.AuthorID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CommentsForTasks returns the comments of every given task, keyed by task id,
// in a single query.
func (r Repo) CommentsForTasks(ctx context.Context, taskIDs []int64) (map[int64][]domain.Comment, error) {
	return r.comments(ctx, "task_id", taskIDs)
}

// CommentsForPosts is CommentsForTasks for posts.
func (r Repo) CommentsForPosts(ctx context.Context, postIDs []int64) (map[int64][]domain.Comment, error) {
	return r.comments(ctx, "post_id", postIDs)
}

func (r Repo) comments(ctx context.Context, parentColumn string, ids []int64) (map[int64][]domain.Comment, error) {
	query := fmt.Sprintf(`SELECT c.id,c.content,c.task_id,c.post_id,c.author_id,a.name
FROM comments c JOIN authors a ON a.id=c.author_id
WHERE c.%s IN (SELECT value FROM json_each(?))
ORDER BY c.id`, parentColumn)
	rows, err := r.DB.QueryContext(ctx, query, jsonList(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[int64][]domain.Comment)
	for rows.Next() {
		var c domain.Comment
		var taskID, postID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Content, &taskID, &postID, &c.AuthorID, &c.AuthorName); err != nil {
			return nil, err
		}
		var key int64
		if taskID.Valid {
			v := taskID.Int64
			c.TaskID = &v
			key = v
		}
		if postID.Valid {
			v := postID.Int64
			c.PostID = &v
			key = v
		}
		res[key] = append(res[key], c)
	}
	return res, rows.Err()
}

// EventFilter narrows ListEvents. Zero values mean no filter.
type EventFilter struct {
	Limit      int
	Type       string
	EntityKind string
	EntityID   string
	// Before returns only events with a smaller id.
	Before int64
}

// ListEvents returns the newest matching events first.
func (r Repo) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Reset deletes every row, keeping the schema. Used before reseeding.
func (r Repo) Reset(ctx context.Context) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"comments", "task_owners", "tasks", "posts", "authors", "accounts", "events"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}
