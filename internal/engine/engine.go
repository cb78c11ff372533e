package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orgchart/internal/cache"
	"orgchart/internal/config"
	"orgchart/internal/domain"
	"orgchart/internal/events"
	"orgchart/internal/hierarchy"
	"orgchart/internal/repo"
)

const tracerName = "orgchart/engine"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	// Cache, when set, serves the author snapshot in walk mode.
	Cache *cache.Authors
	Log   log.FieldLogger
	Now   func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Log:    log.StandardLogger(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() log.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return log.StandardLogger()
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// Mode is the configured traversal implementation.
func (e Engine) Mode() string {
	if e.Config != nil && e.Config.Traversal.Mode == config.ModeClosure {
		return config.ModeClosure
	}
	return config.ModeWalk
}

func (e Engine) strictNames() bool {
	return e.Config != nil && e.Config.Lookup.StrictNames
}

func (e Engine) enforceTransitions() bool {
	return e.Config != nil && e.Config.Tasks.EnforceTransitions
}

// snapshot reads every author once and indexes them.
func (e Engine) snapshot(ctx context.Context) (*hierarchy.Tree, error) {
	var (
		authors []domain.Author
		err     error
	)
	if e.Cache != nil {
		authors, err = e.Cache.ListAuthors(ctx)
	} else {
		authors, err = e.Repo.ListAuthors(ctx)
	}
	if err != nil {
		return nil, err
	}
	return hierarchy.New(authors), nil
}

func (e Engine) snapshotTx(ctx context.Context, tx *sql.Tx) (*hierarchy.Tree, error) {
	authors, err := e.Repo.ListAuthorsTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	return hierarchy.New(authors), nil
}

// InvalidateSnapshot drops the cached author snapshot, if any.
func (e Engine) InvalidateSnapshot(ctx context.Context) {
	if e.Cache != nil {
		e.Cache.Invalidate(ctx)
	}
}

func (e Engine) resolveIn(tree *hierarchy.Tree, ref hierarchy.Ref) (domain.Author, error) {
	if ref.IsZero() {
		return domain.Author{}, invalidInput("author reference is required")
	}
	var (
		a   domain.Author
		err error
	)
	if e.strictNames() {
		a, err = tree.ResolveStrict(ref)
	} else {
		a, err = tree.Resolve(ref)
	}
	return a, translate(err)
}

// resolveTx resolves a reference inside a transaction. Id lookups skip the snapshot.
func (e Engine) resolveTx(ctx context.Context, tx *sql.Tx, tree **hierarchy.Tree, ref hierarchy.Ref) (domain.Author, error) {
	if ref.ID != 0 && *tree == nil {
		a, err := e.Repo.GetAuthorTx(ctx, tx, ref.ID)
		if err != nil {
			return a, notFound(err, "author %s", ref)
		}
		return a, nil
	}
	if *tree == nil {
		t, err := e.snapshotTx(ctx, tx)
		if err != nil {
			return domain.Author{}, err
		}
		*tree = t
	}
	return e.resolveIn(*tree, ref)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	}
	return err
}

func (e Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
