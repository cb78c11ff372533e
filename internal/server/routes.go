package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"orgchart/internal/domain"
	"orgchart/internal/engine"
	"orgchart/internal/hierarchy"
	"orgchart/internal/repo"
)

type authorOutput struct {
	Body domain.Author `json:"body"`
}

type authorsOutput struct {
	Body []domain.Author `json:"body"`
}

type taskRowsOutput struct {
	Body []domain.TaskRow `json:"body"`
}

type taskStateOutput struct {
	Body TaskStateResponse `json:"body"`
}

func parseRef(field, raw string) (hierarchy.Ref, error) {
	ref, err := hierarchy.ParseRef(raw)
	if err != nil {
		return ref, newAPIError(http.StatusBadRequest, "bad_request", field+": "+err.Error(), map[string]any{"field": field})
	}
	return ref, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func registerHealth(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok", "mode": h.e.Mode()}}, nil
	})
}

func registerViews(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "view-subordinates",
		Method:      http.MethodGet,
		Path:        "/view/subordinates",
		Summary:     "Subordinates between two levels below an author",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name       string `query:"name" required:"true" doc:"id:<n>, account:<username> or display name"`
		StartLevel int    `query:"start_level" default:"1"`
		EndLevel   int    `query:"end_level" default:"1"`
	}) (*struct {
		Body []domain.Subordinate `json:"body"`
	}, error) {
		ref, err := parseRef("name", input.Name)
		if err != nil {
			return nil, err
		}
		rows, err := h.e.BoundedSubordinates(ctx, ref, input.StartLevel, input.EndLevel)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Subordinate `json:"body"`
		}{Body: rows}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-ancestors",
		Method:      http.MethodGet,
		Path:        "/view/ancestors",
		Summary:     "Names of every boss above an author, root last",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Name string `query:"name" required:"true"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		ref, err := parseRef("name", input.Name)
		if err != nil {
			return nil, err
		}
		names, err := h.e.AncestorChain(ctx, ref)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: names}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-closest-lead",
		Method:      http.MethodGet,
		Path:        "/view/closest-lead",
		Summary:     "Closest common boss of two authors",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		First  string `query:"first" required:"true"`
		Second string `query:"second" required:"true"`
	}) (*struct {
		Body ClosestLeadResponse `json:"body"`
	}, error) {
		first, err := parseRef("first", input.First)
		if err != nil {
			return nil, err
		}
		second, err := parseRef("second", input.Second)
		if err != nil {
			return nil, err
		}
		out := &struct {
			Body ClosestLeadResponse `json:"body"`
		}{}
		lead, err := h.e.ClosestCommonAncestor(ctx, first, second)
		switch {
		case errors.Is(err, engine.ErrNoCommonAncestor):
			out.Body.Failed = err.Error()
		case err != nil:
			return nil, h.handleError(err)
		default:
			out.Body.ClosestLead = lead.Username
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-peers",
		Method:      http.MethodGet,
		Path:        "/view/peers",
		Summary:     "Authors sharing the same boss",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `query:"name" required:"true"`
	}) (*authorsOutput, error) {
		ref, err := parseRef("name", input.Name)
		if err != nil {
			return nil, err
		}
		peers, err := h.e.Peers(ctx, ref)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &authorsOutput{Body: peers}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-tree",
		Method:      http.MethodGet,
		Path:        "/view/tree",
		Summary:     "Nested hierarchy below an author or the root",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Root string `query:"root"`
	}) (*struct {
		Body TreeResponse `json:"body"`
	}, error) {
		var ref hierarchy.Ref
		if input.Root != "" {
			var err error
			if ref, err = parseRef("root", input.Root); err != nil {
				return nil, err
			}
		}
		node, err := h.e.Tree(ctx, ref)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body TreeResponse `json:"body"`
		}{Body: node}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-validate",
		Method:      http.MethodGet,
		Path:        "/view/validate",
		Summary:     "Check the stored hierarchy is a single rooted tree",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ValidateResponse `json:"body"`
	}, error) {
		if err := h.e.ValidateTree(ctx); err != nil {
			return nil, h.handleError(err)
		}
		authors, err := h.e.ListAuthors(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body ValidateResponse `json:"body"`
		}{Body: ValidateResponse{Valid: true, Authors: len(authors), Mode: h.e.Mode()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-tasks",
		Method:      http.MethodGet,
		Path:        "/view/tasks",
		Summary:     "Tasks owned by the named authors, or every task",
	}, func(ctx context.Context, input *struct {
		Author   string `query:"author" doc:"comma separated display names; omit for all tasks"`
		Comments bool   `query:"comments"`
	}) (*taskRowsOutput, error) {
		var (
			rows []domain.TaskRow
			err  error
		)
		if names := splitList(input.Author); len(names) > 0 {
			rows, err = h.e.TasksForAuthors(ctx, names, input.Comments)
		} else {
			rows, err = h.e.AllTasks(ctx, input.Comments)
		}
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskRowsOutput{Body: rows}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-subtree-tasks",
		Method:      http.MethodGet,
		Path:        "/view/subtree-tasks",
		Summary:     "Tasks owned by an author's subordinates",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Username   string `query:"username" required:"true"`
		StartLevel int    `query:"start_level" default:"1"`
		EndLevel   int    `query:"end_level" default:"1"`
		Comments   bool   `query:"comments"`
	}) (*taskRowsOutput, error) {
		rows, err := h.e.SubtreeTasks(ctx, input.Username, input.StartLevel, input.EndLevel, input.Comments)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskRowsOutput{Body: rows}, nil
	})
}

func registerAuthors(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-authors",
		Method:      http.MethodGet,
		Path:        "/authors",
		Summary:     "List authors",
	}, func(ctx context.Context, _ *struct{}) (*authorsOutput, error) {
		authors, err := h.e.ListAuthors(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &authorsOutput{Body: nonNilSlice(authors)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-author",
		Method:        http.MethodPost,
		Path:          "/authors",
		Summary:       "Create author",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string              `header:"X-Actor-Id"`
		Body    CreateAuthorRequest `json:"body"`
	}) (*authorOutput, error) {
		opts := engine.AuthorCreateOptions{
			Username: input.Body.Username,
			Name:     input.Body.Name,
			Age:      input.Body.Age,
			Height:   input.Body.Height,
			ActorID:  input.ActorID,
		}
		if input.Body.Boss != "" {
			boss, err := parseRef("boss", input.Body.Boss)
			if err != nil {
				return nil, err
			}
			opts.Boss = boss
		}
		a, err := h.e.CreateAuthor(ctx, opts)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &authorOutput{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-boss",
		Method:      http.MethodPatch,
		Path:        "/authors/{id}/boss",
		Summary:     "Move an author under a new boss",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID      int64               `path:"id"`
		ActorID string              `header:"X-Actor-Id"`
		Body    ReassignBossRequest `json:"body"`
	}) (*authorOutput, error) {
		boss, err := parseRef("boss", input.Body.Boss)
		if err != nil {
			return nil, err
		}
		a, err := h.e.ReassignBoss(ctx, hierarchy.ByID(input.ID), boss, input.ActorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &authorOutput{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "author-posts",
		Method:      http.MethodGet,
		Path:        "/authors/{ref}/posts",
		Summary:     "Posts written by an author, with comments",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Ref string `path:"ref"`
	}) (*struct {
		Body []domain.Post `json:"body"`
	}, error) {
		raw, err := url.PathUnescape(input.Ref)
		if err != nil {
			raw = input.Ref
		}
		ref, err := parseRef("ref", raw)
		if err != nil {
			return nil, err
		}
		posts, err := h.e.PostsByAuthor(ctx, ref)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Post `json:"body"`
		}{Body: posts}, nil
	})
}

func registerTasks(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string            `header:"X-Actor-Id"`
		Body    CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		opts := engine.TaskCreateOptions{
			Headline: input.Body.Headline,
			Content:  input.Body.Content,
			Date:     input.Body.Date,
			State:    input.Body.State,
			ActorID:  input.ActorID,
		}
		for _, raw := range input.Body.Owners {
			ref, err := parseRef("owners", raw)
			if err != nil {
				return nil, err
			}
			opts.Owners = append(opts.Owners, ref)
		}
		t, err := h.e.CreateTask(ctx, opts)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-state",
		Method:      http.MethodPatch,
		Path:        "/tasks/state",
		Summary:     "Set the state of the task with a headline",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string                 `header:"X-Actor-Id"`
		Body    UpdateTaskStateRequest `json:"body"`
	}) (*taskStateOutput, error) {
		t, err := h.e.UpdateTaskState(ctx, input.Body.Headline, input.Body.State, input.ActorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskStateOutput{Body: TaskStateResponse{Success: true, Task: t}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-state-by-id",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/state",
		Summary:     "Set the state of a task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID      int64                      `path:"id"`
		ActorID string                     `header:"X-Actor-Id"`
		Body    UpdateTaskStateByIDRequest `json:"body"`
	}) (*taskStateOutput, error) {
		t, err := h.e.UpdateTaskStateByID(ctx, input.ID, input.Body.State, input.ActorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &taskStateOutput{Body: TaskStateResponse{Success: true, Task: t}}, nil
	})
}

func registerPosts(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-post",
		Method:        http.MethodPost,
		Path:          "/posts",
		Summary:       "Create post",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string            `header:"X-Actor-Id"`
		Body    CreatePostRequest `json:"body"`
	}) (*struct {
		Body domain.Post `json:"body"`
	}, error) {
		author, err := parseRef("author", input.Body.Author)
		if err != nil {
			return nil, err
		}
		p, err := h.e.CreatePost(ctx, engine.PostCreateOptions{
			Headline: input.Body.Headline,
			Content:  input.Body.Content,
			Author:   author,
			ActorID:  input.ActorID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Post `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/comments",
		Summary:       "Comment on a task or a post",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string               `header:"X-Actor-Id"`
		Body    CreateCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		author, err := parseRef("author", input.Body.Author)
		if err != nil {
			return nil, err
		}
		c, err := h.e.CreateComment(ctx, engine.CommentCreateOptions{
			Content: input.Body.Content,
			Author:  author,
			TaskID:  input.Body.TaskID,
			PostID:  input.Body.PostID,
			ActorID: input.ActorID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})
}

func registerEvents(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"author,task,post,comment"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Before     int64  `query:"before" doc:"only events with a smaller id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := h.e.ListEvents(ctx, repo.EventFilter{
			Limit:      normalizeLimit(input.Limit),
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     input.Before,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := []EventResponse{}
		for _, evt := range items {
			resp = append(resp, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
