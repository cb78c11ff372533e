package repo

import (
	"context"
	"database/sql"
	"strings"

	"orgchart/internal/domain"
)

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	state := t.State
	if state == "" {
		state = domain.StateNew
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(headline,content,date,creation_date,state) VALUES (?,?,?,?,?)`,
		t.Headline, t.Content, nullableStringPtr(t.Date), t.CreationDate, string(state))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) AddTaskOwnersTx(ctx context.Context, tx *sql.Tx, taskID int64, authorIDs []int64) error {
	for _, id := range authorIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_owners(author_id,task_id) VALUES (?,?)`, id, taskID); err != nil {
			return err
		}
	}
	return nil
}

const taskColumns = `t.id,t.headline,t.content,t.date,t.creation_date,t.state`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var date sql.NullString
	var state string
	err := row.Scan(&t.ID, &t.Headline, &t.Content, &date, &t.CreationDate, &state)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if date.Valid {
		v := date.String
		t.Date = &v
	}
	t.State = domain.TaskState(state)
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return getTask(ctx, tx, id)
}

func getTask(ctx context.Context, q queryer, id int64) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=?`, id))
	if err != nil {
		return t, err
	}
	t.OwnerIDs, err = taskOwners(ctx, q, id)
	return t, err
}

// FindTaskByHeadlineTx returns the task with the given headline. Headlines are
// not unique; the lowest id wins.
func (r Repo) FindTaskByHeadlineTx(ctx context.Context, tx *sql.Tx, headline string) (domain.Task, error) {
	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.headline=? ORDER BY t.id LIMIT 1`, headline))
	if err != nil {
		return t, err
	}
	t.OwnerIDs, err = taskOwners(ctx, tx, t.ID)
	return t, err
}

func taskOwners(ctx context.Context, q queryer, taskID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT author_id FROM task_owners WHERE task_id=? ORDER BY author_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) UpdateTaskStateTx(ctx context.Context, tx *sql.Tx, id int64, state domain.TaskState) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET state=? WHERE id=?`, string(state), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskRowFilter selects the owners whose tasks TaskRows returns. With both
// fields nil every owner matches; an empty non-nil slice matches nobody.
type TaskRowFilter struct {
	AuthorNames []string
	AuthorIDs   []int64
}

// TaskRows joins tasks, ownership, authors and accounts in one query and returns
// one row per (task, matching owner), ordered by task then owner id.
func (r Repo) TaskRows(ctx context.Context, f TaskRowFilter) ([]domain.TaskRow, error) {
	var (
		clauses []string
		args    []any
	)
	if f.AuthorNames != nil {
		clauses = append(clauses, "a.name IN (SELECT value FROM json_each(?))")
		args = append(args, jsonList(f.AuthorNames))
	}
	if f.AuthorIDs != nil {
		clauses = append(clauses, "a.id IN (SELECT value FROM json_each(?))")
		args = append(args, jsonList(f.AuthorIDs))
	}
	query := `SELECT t.id,t.headline,t.content,t.date,t.creation_date,t.state,a.id,a.name,acc.username
FROM tasks t
JOIN task_owners o ON o.task_id=t.id
JOIN authors a ON a.id=o.author_id
JOIN accounts acc ON acc.id=a.account_id`
	if len(clauses) > 0 {
		query += "\nWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\nORDER BY t.id, a.id"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskRow
	for rows.Next() {
		var tr domain.TaskRow
		var date sql.NullString
		var state string
		if err := rows.Scan(&tr.TaskID, &tr.Headline, &tr.Content, &date, &tr.CreationDate, &state, &tr.AuthorID, &tr.Author, &tr.Username); err != nil {
			return nil, err
		}
		if date.Valid {
			v := date.String
			tr.Date = &v
		}
		tr.State = domain.TaskState(state)
		res = append(res, tr)
	}
	return res, rows.Err()
}

// AttachTaskComments fills Comments on every row with one batched query.
func (r Repo) AttachTaskComments(ctx context.Context, rows []domain.TaskRow) error {
	if len(rows) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(rows))
	var ids []int64
	for _, tr := range rows {
		if !seen[tr.TaskID] {
			seen[tr.TaskID] = true
			ids = append(ids, tr.TaskID)
		}
	}
	comments, err := r.CommentsForTasks(ctx, ids)
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].Comments = comments[rows[i].TaskID]
	}
	return nil
}
