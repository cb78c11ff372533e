// Package seed fills a workspace with generated authors, tasks, posts and
// comments, or with the small five-person demo organization.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"orgchart/internal/config"
	"orgchart/internal/domain"
	"orgchart/internal/engine"
	"orgchart/internal/hierarchy"
)

const (
	RootName     = "Jonny Jones"
	RootUsername = "blockbuster"
)

type Options struct {
	Authors  int
	Tasks    int
	Posts    int
	Comments int
	// Seed makes a run reproducible; the same seed yields the same data.
	Seed    uint64
	ActorID string
	Log     log.FieldLogger
}

// FromConfig copies the seed section of cfg.
func FromConfig(cfg config.SeedConfig) Options {
	return Options{Authors: cfg.Authors, Tasks: cfg.Tasks, Posts: cfg.Posts, Comments: cfg.Comments, Seed: cfg.Seed}
}

type Result struct {
	Root     domain.Author `json:"root"`
	Authors  int           `json:"authors"`
	Tasks    int           `json:"tasks"`
	Posts    int           `json:"posts"`
	Comments int           `json:"comments"`
}

// Run generates data through the engine, so every row passes the same checks
// and leaves the same events as a manual mutation. The store must have no root yet.
func Run(ctx context.Context, eng engine.Engine, opts Options) (Result, error) {
	if opts.Authors < 1 {
		return Result{}, fmt.Errorf("seed needs at least one author")
	}
	if opts.ActorID == "" {
		opts.ActorID = "seed"
	}
	logger := opts.Log
	if logger == nil {
		logger = log.StandardLogger()
	}
	fake := gofakeit.New(opts.Seed)
	var res Result

	logger.WithField("count", opts.Authors).Info("creating authors")
	root, err := eng.CreateAuthor(ctx, engine.AuthorCreateOptions{
		Username: RootUsername, Name: RootName, Age: 45, Height: 1.85, ActorID: opts.ActorID,
	})
	if err != nil {
		return res, fmt.Errorf("create root: %w", err)
	}
	res.Root = root
	authors := []int64{root.ID}
	for i := 1; i < opts.Authors; i++ {
		// Every new author reports to someone already in the tree, so the
		// result is a single tree rooted at the first author.
		boss := authors[fake.IntRange(0, len(authors)-1)]
		a, err := eng.CreateAuthor(ctx, engine.AuthorCreateOptions{
			Username: username(fake.Username(), opts.Seed, i),
			Name:     fake.Name(),
			Age:      fake.IntRange(20, 65),
			Height:   float64(int(fake.Float64Range(1.5, 2.0)*100)) / 100,
			Boss:     hierarchy.ByID(boss),
			ActorID:  opts.ActorID,
		})
		if err != nil {
			return res, fmt.Errorf("create author %d: %w", i, err)
		}
		authors = append(authors, a.ID)
	}
	res.Authors = len(authors)

	logger.WithField("count", opts.Tasks).Info("creating tasks")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tasks []int64
	for i := 0; i < opts.Tasks; i++ {
		owners := pick(fake, authors, fake.IntRange(1, 3))
		refs := make([]hierarchy.Ref, 0, len(owners))
		for _, id := range owners {
			refs = append(refs, hierarchy.ByID(id))
		}
		t, err := eng.CreateTask(ctx, engine.TaskCreateOptions{
			Headline: strings.TrimSuffix(fake.Sentence(6), "."),
			Content:  fake.Paragraph(1, 3, 12, " "),
			Date:     fake.DateRange(start, start.Add(30*24*time.Hour)).Format(time.RFC3339),
			State:    string(domain.TaskStates[fake.IntRange(0, len(domain.TaskStates)-1)]),
			Owners:   refs,
			ActorID:  opts.ActorID,
		})
		if err != nil {
			return res, fmt.Errorf("create task %d: %w", i, err)
		}
		tasks = append(tasks, t.ID)
	}
	res.Tasks = len(tasks)

	logger.WithField("count", opts.Posts).Info("creating posts")
	var posts []int64
	for i := 0; i < opts.Posts; i++ {
		p, err := eng.CreatePost(ctx, engine.PostCreateOptions{
			Headline: strings.TrimSuffix(fake.Sentence(8), "."),
			Content:  fake.Paragraph(2, 4, 14, "\n\n"),
			Author:   hierarchy.ByID(authors[fake.IntRange(0, len(authors)-1)]),
			ActorID:  opts.ActorID,
		})
		if err != nil {
			return res, fmt.Errorf("create post %d: %w", i, err)
		}
		posts = append(posts, p.ID)
	}
	res.Posts = len(posts)

	logger.WithField("count", opts.Comments).Info("creating comments")
	for i := 0; i < opts.Comments; i++ {
		c := engine.CommentCreateOptions{
			Content: fake.Sentence(10),
			Author:  hierarchy.ByID(authors[fake.IntRange(0, len(authors)-1)]),
			ActorID: opts.ActorID,
		}
		onTask := fake.Bool()
		switch {
		case onTask && len(tasks) > 0:
			c.TaskID = tasks[fake.IntRange(0, len(tasks)-1)]
		case len(posts) > 0:
			c.PostID = posts[fake.IntRange(0, len(posts)-1)]
		case len(tasks) > 0:
			c.TaskID = tasks[fake.IntRange(0, len(tasks)-1)]
		default:
			continue
		}
		if _, err := eng.CreateComment(ctx, c); err != nil {
			return res, fmt.Errorf("create comment %d: %w", i, err)
		}
		res.Comments++
	}
	logger.WithFields(log.Fields{
		"authors":  res.Authors,
		"tasks":    res.Tasks,
		"posts":    res.Posts,
		"comments": res.Comments,
	}).Info("seeding completed")
	return res, nil
}

// username makes a generated handle unique within a run by appending a short
// name-based uuid fragment.
func username(base string, seed uint64, i int) string {
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" {
		base = "user"
	}
	frag := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("orgchart|%d|%d", seed, i))).String()[:8]
	return base + "." + frag
}

// pick returns k distinct values from ids, or all of them when k >= len(ids).
func pick(fake *gofakeit.Faker, ids []int64, k int) []int64 {
	if k >= len(ids) {
		return append([]int64(nil), ids...)
	}
	chosen := make(map[int]bool, k)
	out := make([]int64, 0, k)
	for len(out) < k {
		i := fake.IntRange(0, len(ids)-1)
		if chosen[i] {
			continue
		}
		chosen[i] = true
		out = append(out, ids[i])
	}
	return out
}

// Scenario loads the demo organization: Jonny Jones leads Emily Hynes and
// Acadia Reed, who lead Steven Butt and Greg Lane. Each of them owns a task.
func Scenario(ctx context.Context, eng engine.Engine, actorID string) (Result, error) {
	if actorID == "" {
		actorID = "seed"
	}
	people := []struct {
		username, name, boss string
		age                  int
		height               float64
	}{
		{RootUsername, RootName, "", 45, 1.85},
		{"emily", "Emily Hynes", RootUsername, 38, 1.68},
		{"steven", "Steven Butt", "emily", 29, 1.80},
		{"acadia", "Acadia Reed", RootUsername, 41, 1.72},
		{"greg", "Greg Lane", "acadia", 33, 1.77},
	}
	var res Result
	for _, p := range people {
		opts := engine.AuthorCreateOptions{Username: p.username, Name: p.name, Age: p.age, Height: p.height, ActorID: actorID}
		if p.boss != "" {
			opts.Boss = hierarchy.ByUsername(p.boss)
		}
		a, err := eng.CreateAuthor(ctx, opts)
		if err != nil {
			return res, fmt.Errorf("create %s: %w", p.username, err)
		}
		if p.boss == "" {
			res.Root = a
		}
		res.Authors++
		if _, err := eng.CreateTask(ctx, engine.TaskCreateOptions{
			Headline: p.name + " weekly report",
			Content:  "Summarize the week for " + p.name,
			Owners:   []hierarchy.Ref{hierarchy.ByUsername(p.username)},
			ActorID:  actorID,
		}); err != nil {
			return res, fmt.Errorf("create task for %s: %w", p.username, err)
		}
		res.Tasks++
	}
	return res, nil
}
