package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"orgchart/internal/domain"
	"orgchart/internal/events"
	"orgchart/internal/hierarchy"
)

func actorOrDefault(actor string) string {
	if actor == "" {
		return "local-user"
	}
	return actor
}

// AuthorCreateOptions are parameters for creating an author and its account.
// A zero Boss creates the root, which is only allowed while no root exists.
type AuthorCreateOptions struct {
	Username string
	Name     string
	Age      int
	Height   float64
	Boss     hierarchy.Ref
	ActorID  string
}

func (e Engine) CreateAuthor(ctx context.Context, opts AuthorCreateOptions) (domain.Author, error) {
	opts.Username = strings.TrimSpace(opts.Username)
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Username == "" {
		return domain.Author{}, invalidInput("username is required")
	}
	if hierarchy.Reserved(opts.Username) {
		return domain.Author{}, invalidInput("username %q uses a reserved prefix", opts.Username)
	}
	if opts.Name == "" {
		return domain.Author{}, invalidInput("name is required")
	}
	if hierarchy.Reserved(opts.Name) {
		return domain.Author{}, invalidInput("name %q uses a reserved prefix", opts.Name)
	}
	if opts.Age < 0 || opts.Height < 0 {
		return domain.Author{}, invalidInput("age and height must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Author{}, err
	}
	defer tx.Rollback()

	a := domain.Author{Name: opts.Name, Age: opts.Age, Height: opts.Height, Username: opts.Username}
	if opts.Boss.IsZero() {
		roots, err := e.Repo.CountRootsTx(ctx, tx)
		if err != nil {
			return domain.Author{}, err
		}
		if roots > 0 {
			return domain.Author{}, fmt.Errorf("a root already exists, new authors need a boss: %w", ErrConflict)
		}
	} else {
		var tree *hierarchy.Tree
		boss, err := e.resolveTx(ctx, tx, &tree, opts.Boss)
		if err != nil {
			return domain.Author{}, err
		}
		a.BossID = &boss.ID
	}
	exists, err := e.Repo.UsernameExistsTx(ctx, tx, opts.Username)
	if err != nil {
		return domain.Author{}, err
	}
	if exists {
		return domain.Author{}, fmt.Errorf("username %q is taken: %w", opts.Username, ErrConflict)
	}
	if a.AccountID, err = e.Repo.InsertAccountTx(ctx, tx, opts.Username); err != nil {
		return domain.Author{}, fmt.Errorf("insert account: %w", err)
	}
	if a.ID, err = e.Repo.InsertAuthorTx(ctx, tx, a); err != nil {
		return domain.Author{}, fmt.Errorf("insert author: %w", err)
	}
	payload := events.Payload{"name": a.Name, "username": a.Username}
	if a.BossID != nil {
		payload["boss_id"] = *a.BossID
	}
	if err := e.events().Append(ctx, tx, events.Record{
		Type: events.AuthorCreated, EntityKind: events.KindAuthor, EntityID: a.ID,
		Actor: actorOrDefault(opts.ActorID), Payload: payload,
	}); err != nil {
		return domain.Author{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Author{}, err
	}
	e.InvalidateSnapshot(ctx)
	return a, nil
}

// ReassignBoss moves author under newBoss. The move is rejected when it would
// put the author below itself or give the root a boss.
func (e Engine) ReassignBoss(ctx context.Context, author, newBoss hierarchy.Ref, actorID string) (updated domain.Author, err error) {
	ctx, span := e.startSpan(ctx, "engine.ReassignBoss",
		attribute.String("author", author.String()),
		attribute.String("boss", newBoss.String()),
	)
	defer func() { endSpan(span, err) }()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Author{}, err
	}
	defer tx.Rollback()
	tree, err := e.snapshotTx(ctx, tx)
	if err != nil {
		return domain.Author{}, err
	}
	a, err := e.resolveIn(tree, author)
	if err != nil {
		return domain.Author{}, err
	}
	boss, err := e.resolveIn(tree, newBoss)
	if err != nil {
		return domain.Author{}, err
	}
	if a.BossID != nil && *a.BossID == boss.ID {
		return a, nil
	}
	if err := tree.CheckReassign(a.ID, boss.ID); err != nil {
		if errors.Is(err, ErrInvariant) {
			return domain.Author{}, tag(ErrConflict, err)
		}
		return domain.Author{}, translate(err)
	}
	if err := e.Repo.UpdateAuthorBossTx(ctx, tx, a.ID, boss.ID); err != nil {
		return domain.Author{}, err
	}
	payload := events.Payload{"to": boss.ID}
	if a.BossID != nil {
		payload["from"] = *a.BossID
	}
	if err := e.events().Append(ctx, tx, events.Record{
		Type: events.AuthorReassigned, EntityKind: events.KindAuthor, EntityID: a.ID,
		Actor: actorOrDefault(actorID), Payload: payload,
	}); err != nil {
		return domain.Author{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Author{}, err
	}
	e.InvalidateSnapshot(ctx)
	a.BossID = &boss.ID
	return a, nil
}

// TaskCreateOptions are parameters for creating a task. Date accepts RFC 3339 or
// YYYY-MM-DD. An empty State means new.
type TaskCreateOptions struct {
	Headline string
	Content  string
	Date     string
	State    string
	Owners   []hierarchy.Ref
	ActorID  string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Headline) == "" {
		return domain.Task{}, invalidInput("headline is required")
	}
	if len(opts.Owners) == 0 {
		return domain.Task{}, invalidInput("a task needs at least one owner")
	}
	state := domain.StateNew
	if opts.State != "" {
		st, err := domain.ParseTaskState(opts.State)
		if err != nil {
			return domain.Task{}, tag(ErrInvalidState, err)
		}
		state = st
	}
	t := domain.Task{
		Headline:     strings.TrimSpace(opts.Headline),
		Content:      opts.Content,
		CreationDate: e.now().UTC().Format(time.RFC3339),
		State:        state,
	}
	if opts.Date != "" {
		due, err := parseDate(opts.Date)
		if err != nil {
			return domain.Task{}, err
		}
		t.Date = &due
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	var tree *hierarchy.Tree
	seen := map[int64]bool{}
	for _, ref := range opts.Owners {
		owner, err := e.resolveTx(ctx, tx, &tree, ref)
		if err != nil {
			return domain.Task{}, err
		}
		if !seen[owner.ID] {
			seen[owner.ID] = true
			t.OwnerIDs = append(t.OwnerIDs, owner.ID)
		}
	}
	if t.ID, err = e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Repo.AddTaskOwnersTx(ctx, tx, t.ID, t.OwnerIDs); err != nil {
		return domain.Task{}, fmt.Errorf("insert task owners: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.Record{
		Type: events.TaskCreated, EntityKind: events.KindTask, EntityID: t.ID, Actor: actorOrDefault(opts.ActorID),
		Payload: events.Payload{"headline": t.Headline, "owners": t.OwnerIDs, "state": t.State},
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func parseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC().Format(time.RFC3339), nil
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d.UTC().Format(time.RFC3339), nil
	}
	return "", invalidInput("date %q is neither RFC 3339 nor YYYY-MM-DD", s)
}

// UpdateTaskState sets the state of the task with the given headline. When
// several tasks share the headline the one with the lowest id is updated.
func (e Engine) UpdateTaskState(ctx context.Context, headline, state, actorID string) (domain.Task, error) {
	st, err := domain.ParseTaskState(state)
	if err != nil {
		return domain.Task{}, tag(ErrInvalidState, err)
	}
	headline = strings.TrimSpace(headline)
	if headline == "" {
		return domain.Task{}, invalidInput("headline is required")
	}
	return e.updateTaskState(ctx, st, actorID, func(tx *sql.Tx) (domain.Task, error) {
		t, err := e.Repo.FindTaskByHeadlineTx(ctx, tx, headline)
		return t, notFound(err, "task %q", headline)
	})
}

// UpdateTaskStateByID is UpdateTaskState addressed by task id.
func (e Engine) UpdateTaskStateByID(ctx context.Context, id int64, state, actorID string) (domain.Task, error) {
	st, err := domain.ParseTaskState(state)
	if err != nil {
		return domain.Task{}, tag(ErrInvalidState, err)
	}
	return e.updateTaskState(ctx, st, actorID, func(tx *sql.Tx) (domain.Task, error) {
		t, err := e.Repo.GetTaskTx(ctx, tx, id)
		return t, notFound(err, "task %d", id)
	})
}

func (e Engine) updateTaskState(ctx context.Context, st domain.TaskState, actorID string, find func(tx *sql.Tx) (domain.Task, error)) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := find(tx)
	if err != nil {
		return domain.Task{}, err
	}
	if err := ensureTaskTransition(t.State, st, !e.enforceTransitions()); err != nil {
		return domain.Task{}, err
	}
	old := t.State
	if err := e.Repo.UpdateTaskStateTx(ctx, tx, t.ID, st); err != nil {
		return domain.Task{}, err
	}
	if err := e.events().Append(ctx, tx, events.Record{
		Type: events.TaskStateUpdated, EntityKind: events.KindTask, EntityID: t.ID, Actor: actorOrDefault(actorID),
		Payload: events.Payload{"from": old, "to": st},
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.State = st
	e.logger().WithFields(log.Fields{"task": t.ID, "from": old, "to": st}).Debug("task state updated")
	return t, nil
}

// ensureTaskTransition checks a state change against the lifecycle. Writing the
// current state again is always allowed.
func ensureTaskTransition(oldState, newState domain.TaskState, permissive bool) error {
	if permissive || oldState == newState {
		return nil
	}
	if oldState.Terminal() {
		return fmt.Errorf("%s is terminal, cannot move to %s: %w", oldState, newState, ErrInvalidTransition)
	}
	switch oldState {
	case domain.StateNew:
		if newState == domain.StateInProgress || newState == domain.StateDelayed || newState == domain.StateCanceled {
			return nil
		}
	case domain.StateInProgress:
		if newState == domain.StateFinished || newState == domain.StateDelayed || newState == domain.StateCanceled {
			return nil
		}
	case domain.StateDelayed:
		if newState == domain.StateInProgress || newState == domain.StateCanceled {
			return nil
		}
	}
	return fmt.Errorf("%s -> %s: %w", oldState, newState, ErrInvalidTransition)
}

type PostCreateOptions struct {
	Headline string
	Content  string
	Author   hierarchy.Ref
	ActorID  string
}

func (e Engine) CreatePost(ctx context.Context, opts PostCreateOptions) (domain.Post, error) {
	if strings.TrimSpace(opts.Headline) == "" {
		return domain.Post{}, invalidInput("headline is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Post{}, err
	}
	defer tx.Rollback()
	var tree *hierarchy.Tree
	author, err := e.resolveTx(ctx, tx, &tree, opts.Author)
	if err != nil {
		return domain.Post{}, err
	}
	p := domain.Post{Headline: strings.TrimSpace(opts.Headline), Content: opts.Content, AuthorID: author.ID}
	if p.ID, err = e.Repo.InsertPostTx(ctx, tx, p); err != nil {
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.Record{
		Type: events.PostCreated, EntityKind: events.KindPost, EntityID: p.ID, Actor: actorOrDefault(opts.ActorID),
		Payload: events.Payload{"author_id": author.ID, "headline": p.Headline},
	}); err != nil {
		return domain.Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Post{}, err
	}
	return p, nil
}

// CommentCreateOptions attach a comment to exactly one of a task or a post.
type CommentCreateOptions struct {
	Content string
	Author  hierarchy.Ref
	TaskID  int64
	PostID  int64
	ActorID string
}

func (e Engine) CreateComment(ctx context.Context, opts CommentCreateOptions) (domain.Comment, error) {
	if strings.TrimSpace(opts.Content) == "" {
		return domain.Comment{}, invalidInput("content is required")
	}
	if (opts.TaskID == 0) == (opts.PostID == 0) {
		return domain.Comment{}, invalidInput("a comment needs exactly one of task or post")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	var tree *hierarchy.Tree
	author, err := e.resolveTx(ctx, tx, &tree, opts.Author)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{Content: opts.Content, AuthorID: author.ID, AuthorName: author.Name}
	parentKind, parentID := "task", opts.TaskID
	if opts.TaskID != 0 {
		if _, err := e.Repo.GetTaskTx(ctx, tx, opts.TaskID); err != nil {
			return domain.Comment{}, notFound(err, "task %d", opts.TaskID)
		}
		c.TaskID = &opts.TaskID
	} else {
		if _, err := e.Repo.GetPostTx(ctx, tx, opts.PostID); err != nil {
			return domain.Comment{}, notFound(err, "post %d", opts.PostID)
		}
		c.PostID = &opts.PostID
		parentKind, parentID = "post", opts.PostID
	}
	if c.ID, err = e.Repo.InsertCommentTx(ctx, tx, c); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.Record{
		Type: events.CommentCreated, EntityKind: events.KindComment, EntityID: c.ID, Actor: actorOrDefault(opts.ActorID),
		Payload: events.Payload{"author_id": author.ID, parentKind + "_id": parentID},
	}); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// IsClientError reports whether err stems from bad input rather than the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConflict)
}
