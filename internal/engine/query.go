package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"orgchart/internal/config"
	"orgchart/internal/domain"
	"orgchart/internal/hierarchy"
	"orgchart/internal/repo"
)

// view answers traversal questions for one request. In walk mode it holds a
// snapshot of every author; in closure mode each question is one recursive query.
type view struct {
	e    Engine
	tree *hierarchy.Tree
}

func (e Engine) openView(ctx context.Context) (view, error) {
	if e.Mode() == config.ModeClosure {
		return view{e: e}, nil
	}
	tree, err := e.snapshot(ctx)
	if err != nil {
		return view{}, err
	}
	return view{e: e, tree: tree}, nil
}

func (v view) resolve(ctx context.Context, ref hierarchy.Ref) (domain.Author, error) {
	if v.tree != nil {
		return v.e.resolveIn(v.tree, ref)
	}
	r := v.e.Repo
	switch {
	case ref.IsZero():
		return domain.Author{}, invalidInput("author reference is required")
	case ref.ID != 0:
		a, err := r.GetAuthor(ctx, ref.ID)
		return a, notFound(err, "author %s", ref)
	case ref.Username != "":
		a, err := r.GetAuthorByUsername(ctx, ref.Username)
		return a, notFound(err, "author %s", ref)
	}
	matches, err := r.AuthorsByName(ctx, ref.Name)
	if err != nil {
		return domain.Author{}, err
	}
	if len(matches) == 0 {
		return domain.Author{}, fmt.Errorf("author %s: %w", ref, ErrNotFound)
	}
	if len(matches) > 1 && v.e.strictNames() {
		return domain.Author{}, tag(ErrInvalidInput, fmt.Errorf("%q matches %d authors: %w", ref.Name, len(matches), hierarchy.ErrAmbiguous))
	}
	return matches[0], nil
}

func (v view) subordinates(ctx context.Context, start int64, startLevel, endLevel int) ([]domain.Subordinate, error) {
	if v.tree != nil {
		rows, err := v.tree.BoundedSubordinates(start, startLevel, endLevel)
		return rows, translate(err)
	}
	rows, err := v.e.Repo.SubordinateClosure(ctx, start, endLevel)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{start: true}
	for _, r := range rows {
		if seen[r.ID] {
			return nil, &hierarchy.InvariantError{Kind: hierarchy.KindCycle, AuthorID: r.ID, Detail: "boss chain revisits this author"}
		}
		seen[r.ID] = true
	}
	return hierarchy.FilterLevels(hierarchy.OrderBFS(start, rows), startLevel, endLevel), nil
}

func (v view) ancestors(ctx context.Context, a domain.Author) ([]domain.Author, error) {
	if v.tree != nil {
		chain, err := v.tree.AncestorChain(a.ID)
		return chain, translate(err)
	}
	if a.BossID == nil {
		return nil, nil
	}
	n, err := v.e.Repo.CountAuthors(ctx)
	if err != nil {
		return nil, err
	}
	chain, err := v.e.Repo.AncestorClosure(ctx, a.ID, n)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{a.ID: true}
	for _, c := range chain {
		if seen[c.ID] {
			return nil, &hierarchy.InvariantError{Kind: hierarchy.KindCycle, AuthorID: c.ID, Detail: "boss chain revisits this author"}
		}
		seen[c.ID] = true
	}
	last := a
	if len(chain) > 0 {
		last = chain[len(chain)-1]
	}
	if last.BossID != nil {
		return nil, &hierarchy.InvariantError{Kind: hierarchy.KindDanglingBoss, AuthorID: last.ID,
			Detail: fmt.Sprintf("boss %d does not exist", *last.BossID)}
	}
	return chain, nil
}

// BoundedSubordinates lists the authors between startLevel and endLevel links
// below ref, in breadth-first order.
func (e Engine) BoundedSubordinates(ctx context.Context, ref hierarchy.Ref, startLevel, endLevel int) (rows []domain.Subordinate, err error) {
	ctx, span := e.startSpan(ctx, "engine.BoundedSubordinates",
		attribute.String("ref", ref.String()),
		attribute.String("mode", e.Mode()),
		attribute.Int("start_level", startLevel),
		attribute.Int("end_level", endLevel),
	)
	defer func() {
		span.SetAttributes(attribute.Int("rows", len(rows)))
		endSpan(span, err)
	}()
	if startLevel < 0 || endLevel < 0 {
		return nil, invalidInput("levels must be non-negative, got %d..%d", startLevel, endLevel)
	}
	v, err := e.openView(ctx)
	if err != nil {
		return nil, err
	}
	a, err := v.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if startLevel > endLevel || endLevel == 0 {
		return []domain.Subordinate{}, nil
	}
	rows, err = v.subordinates(ctx, a.ID, startLevel, endLevel)
	if err != nil {
		e.logInvariant(err, "subordinate walk")
		return nil, err
	}
	if rows == nil {
		rows = []domain.Subordinate{}
	}
	return rows, nil
}

// AncestorChain returns the names of ref's bosses, nearest first, root last.
func (e Engine) AncestorChain(ctx context.Context, ref hierarchy.Ref) (names []string, err error) {
	ctx, span := e.startSpan(ctx, "engine.AncestorChain",
		attribute.String("ref", ref.String()),
		attribute.String("mode", e.Mode()),
	)
	defer func() { endSpan(span, err) }()
	v, err := e.openView(ctx)
	if err != nil {
		return nil, err
	}
	a, err := v.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	chain, err := v.ancestors(ctx, a)
	if err != nil {
		e.logInvariant(err, "ancestor walk")
		return nil, err
	}
	return hierarchy.Names(chain), nil
}

// ClosestCommonAncestor returns the nearest author that is first or one of its
// bosses and also second or one of its bosses.
func (e Engine) ClosestCommonAncestor(ctx context.Context, first, second hierarchy.Ref) (lead domain.Author, err error) {
	ctx, span := e.startSpan(ctx, "engine.ClosestCommonAncestor",
		attribute.String("first", first.String()),
		attribute.String("second", second.String()),
		attribute.String("mode", e.Mode()),
	)
	defer func() { endSpan(span, err) }()
	v, err := e.openView(ctx)
	if err != nil {
		return domain.Author{}, err
	}
	a, err := v.resolve(ctx, first)
	if err != nil {
		return domain.Author{}, err
	}
	b, err := v.resolve(ctx, second)
	if err != nil {
		return domain.Author{}, err
	}
	if v.tree != nil {
		lead, err = v.tree.ClosestCommonAncestor(a.ID, b.ID)
		err = translate(err)
	} else {
		lead, err = v.closestCommonAncestor(ctx, a, b)
	}
	if err != nil {
		if errors.Is(err, ErrNoCommonAncestor) {
			e.logger().WithFields(log.Fields{"first": a.ID, "second": b.ID}).Warn("authors share no ancestor")
		}
		e.logInvariant(err, "common ancestor walk")
		return domain.Author{}, err
	}
	return lead, nil
}

func (v view) closestCommonAncestor(ctx context.Context, a, b domain.Author) (domain.Author, error) {
	chainA, err := v.ancestors(ctx, a)
	if err != nil {
		return domain.Author{}, err
	}
	leads := map[string]bool{a.Username: true}
	for _, anc := range chainA {
		leads[anc.Username] = true
	}
	chainB, err := v.ancestors(ctx, b)
	if err != nil {
		return domain.Author{}, err
	}
	for _, cand := range append([]domain.Author{b}, chainB...) {
		if leads[cand.Username] {
			return cand, nil
		}
	}
	return domain.Author{}, fmt.Errorf("%d and %d: %w", a.ID, b.ID, ErrNoCommonAncestor)
}

func (e Engine) logInvariant(err error, op string) {
	var ie *hierarchy.InvariantError
	if errors.As(err, &ie) {
		e.logger().WithFields(log.Fields{
			"op":     op,
			"kind":   ie.Kind,
			"author": ie.AuthorID,
		}).Warn(ie.Detail)
	}
}

// Peers returns the other direct subordinates of ref's boss.
func (e Engine) Peers(ctx context.Context, ref hierarchy.Ref) ([]domain.Author, error) {
	tree, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	a, err := e.resolveIn(tree, ref)
	if err != nil {
		return nil, err
	}
	peers, err := tree.Peers(a.ID)
	if err != nil {
		return nil, translate(err)
	}
	if peers == nil {
		peers = []domain.Author{}
	}
	return peers, nil
}

// Tree returns the nested hierarchy below ref, or below the root when ref is zero.
func (e Engine) Tree(ctx context.Context, ref hierarchy.Ref) (hierarchy.Node, error) {
	tree, err := e.snapshot(ctx)
	if err != nil {
		return hierarchy.Node{}, err
	}
	var top domain.Author
	if ref.IsZero() {
		if top, err = tree.Root(); err != nil {
			return hierarchy.Node{}, err
		}
	} else if top, err = e.resolveIn(tree, ref); err != nil {
		return hierarchy.Node{}, err
	}
	node, err := tree.Subtree(top.ID)
	return node, translate(err)
}

// ValidateTree checks the stored hierarchy is a single rooted tree.
func (e Engine) ValidateTree(ctx context.Context) error {
	tree, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if err := tree.Validate(); err != nil {
		e.logInvariant(err, "validate")
		return err
	}
	return nil
}

func (e Engine) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	tree, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Authors(), nil
}

// TasksForAuthors returns one row per (task, owner) for owners whose name is in
// names. An empty name set yields no rows.
func (e Engine) TasksForAuthors(ctx context.Context, names []string, withComments bool) (rows []domain.TaskRow, err error) {
	ctx, span := e.startSpan(ctx, "engine.TasksForAuthors",
		attribute.StringSlice("names", names),
		attribute.Bool("comments", withComments),
	)
	defer func() { endSpan(span, err) }()
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return []domain.TaskRow{}, nil
	}
	return e.taskRows(ctx, repo.TaskRowFilter{AuthorNames: clean}, withComments)
}

// AllTasks returns one row per (task, owner) for every task.
func (e Engine) AllTasks(ctx context.Context, withComments bool) ([]domain.TaskRow, error) {
	return e.taskRows(ctx, repo.TaskRowFilter{}, withComments)
}

// SubtreeTasks returns the tasks owned by the account's author or by any of its
// subordinates between startLevel and endLevel.
func (e Engine) SubtreeTasks(ctx context.Context, username string, startLevel, endLevel int, withComments bool) (rows []domain.TaskRow, err error) {
	ctx, span := e.startSpan(ctx, "engine.SubtreeTasks",
		attribute.String("username", username),
		attribute.String("mode", e.Mode()),
		attribute.Int("start_level", startLevel),
		attribute.Int("end_level", endLevel),
	)
	defer func() { endSpan(span, err) }()
	if strings.TrimSpace(username) == "" {
		return nil, invalidInput("username is required")
	}
	if startLevel < 0 || endLevel < 0 {
		return nil, invalidInput("levels must be non-negative, got %d..%d", startLevel, endLevel)
	}
	v, err := e.openView(ctx)
	if err != nil {
		return nil, err
	}
	a, err := v.resolve(ctx, hierarchy.ByUsername(strings.TrimSpace(username)))
	if err != nil {
		return nil, err
	}
	ids := []int64{a.ID}
	if startLevel <= endLevel && endLevel > 0 {
		subs, err := v.subordinates(ctx, a.ID, startLevel, endLevel)
		if err != nil {
			e.logInvariant(err, "subtree tasks")
			return nil, err
		}
		for _, s := range subs {
			ids = append(ids, s.ID)
		}
	}
	span.SetAttributes(attribute.Int("authors", len(ids)))
	return e.taskRows(ctx, repo.TaskRowFilter{AuthorIDs: ids}, withComments)
}

func (e Engine) taskRows(ctx context.Context, f repo.TaskRowFilter, withComments bool) ([]domain.TaskRow, error) {
	rows, err := e.Repo.TaskRows(ctx, f)
	if err != nil {
		return nil, err
	}
	if withComments {
		if err := e.Repo.AttachTaskComments(ctx, rows); err != nil {
			return nil, err
		}
	}
	if rows == nil {
		rows = []domain.TaskRow{}
	}
	return rows, nil
}

// PostsByAuthor lists ref's posts with their comments.
func (e Engine) PostsByAuthor(ctx context.Context, ref hierarchy.Ref) ([]domain.Post, error) {
	v, err := e.openView(ctx)
	if err != nil {
		return nil, err
	}
	a, err := v.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	posts, err := e.Repo.PostsByAuthor(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []domain.Post{}
	}
	return posts, nil
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	evts, err := e.Repo.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	return evts, nil
}
