package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orgchart/internal/engine"
)

func authorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "author", Short: "Manage authors"}
	cmd.AddCommand(authorCreateCmd())
	cmd.AddCommand(authorReassignCmd())
	cmd.AddCommand(authorListCmd())
	return cmd
}

func authorCreateCmd() *cobra.Command {
	var opts engine.AuthorCreateOptions
	var boss string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an author and its account",
		Long:  "Omit --boss to create the root. Only one root may exist.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if boss != "" {
				ref, err := parseRefArg(boss)
				if err != nil {
					return err
				}
				opts.Boss = ref
			}
			opts.ActorID = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAuthor(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("created author %d %s (%s)\n", a.ID, a.Name, a.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Username, "username", "", "account username")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().IntVar(&opts.Age, "age", 0, "age")
	cmd.Flags().Float64Var(&opts.Height, "height", 0, "height in meters")
	cmd.Flags().StringVar(&boss, "boss", "", "boss reference")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func authorReassignCmd() *cobra.Command {
	var boss string
	cmd := &cobra.Command{
		Use:   "reassign <author>",
		Short: "Move an author under a new boss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs([]string{args[0], boss})
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ReassignBoss(ctx, refs[0], refs[1], actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("%s now reports to author %d\n", a.Name, *a.BossID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&boss, "boss", "", "new boss reference")
	_ = cmd.MarkFlagRequired("boss")
	return cmd
}

func authorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List authors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authors, err := e.ListAuthors(ctx)
				if err != nil {
					return err
				}
				return printAuthors(authors)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "States: new, in_progress, finished, delayed, canceled. With tasks.enforce_transitions only lifecycle moves are accepted.",
	}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskSubtreeCmd())
	cmd.AddCommand(taskStateCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var owners []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(owners)
			if err != nil {
				return err
			}
			opts.Owners = refs
			opts.ActorID = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("created task %d %q [%s]\n", t.ID, t.Headline, t.State)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Headline, "headline", "", "headline")
	cmd.Flags().StringVar(&opts.Content, "content", "", "content")
	cmd.Flags().StringVar(&opts.Date, "date", "", "due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&opts.State, "state", "", "initial state (default new)")
	cmd.Flags().StringArrayVar(&owners, "owner", nil, "owner reference (repeatable)")
	_ = cmd.MarkFlagRequired("headline")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func taskListCmd() *cobra.Command {
	var authors []string
	var withComments bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with their owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(authors) == 0 {
					rows, err := e.AllTasks(ctx, withComments)
					if err != nil {
						return err
					}
					return printTaskRows(rows, withComments)
				}
				rows, err := e.TasksForAuthors(ctx, authors, withComments)
				if err != nil {
					return err
				}
				return printTaskRows(rows, withComments)
			})
		},
	}
	cmd.Flags().StringArrayVar(&authors, "author", nil, "owner display name (repeatable)")
	cmd.Flags().BoolVar(&withComments, "comments", false, "include comments")
	return cmd
}

func taskSubtreeCmd() *cobra.Command {
	var start, end int
	var withComments bool
	cmd := &cobra.Command{
		Use:   "subtree <username>",
		Short: "Tasks owned by an account's author and its subordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.SubtreeTasks(ctx, args[0], start, end, withComments)
				if err != nil {
					return err
				}
				return printTaskRows(rows, withComments)
			})
		},
	}
	cmd.Flags().IntVar(&start, "start", 1, "first level to include")
	cmd.Flags().IntVar(&end, "end", 1, "last level to include")
	cmd.Flags().BoolVar(&withComments, "comments", false, "include comments")
	return cmd
}

func taskStateCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "state [headline] <state>",
		Short: "Set a task's state by headline or --id",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var err error
				var updated any
				switch {
				case id != 0 && len(args) == 1:
					updated, err = e.UpdateTaskStateByID(ctx, id, args[0], actor())
				case id == 0 && len(args) == 2:
					updated, err = e.UpdateTaskState(ctx, args[0], args[1], actor())
				default:
					return fmt.Errorf("give either <headline> <state> or --id <id> <state>")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"success": true, "task": updated})
				}
				fmt.Println("task updated")
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	return cmd
}

func postCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "post", Short: "Manage posts"}
	cmd.AddCommand(postCreateCmd())
	cmd.AddCommand(postListCmd())
	return cmd
}

func postCreateCmd() *cobra.Command {
	var opts engine.PostCreateOptions
	var author string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(author)
			if err != nil {
				return err
			}
			opts.Author = ref
			opts.ActorID = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePost(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("created post %d %q\n", p.ID, p.Headline)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Headline, "headline", "", "headline")
	cmd.Flags().StringVar(&opts.Content, "content", "", "content")
	cmd.Flags().StringVar(&author, "author", "", "author reference")
	_ = cmd.MarkFlagRequired("headline")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func postListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <author>",
		Short: "List an author's posts with comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				posts, err := e.PostsByAuthor(ctx, ref)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(posts)
				}
				tw := newTable(table.Row{"ID", "Headline", "Comments"})
				for _, p := range posts {
					tw.AppendRow(table.Row{p.ID, p.Headline, len(p.Comments)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func commentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "comment", Short: "Comment on tasks and posts"}
	cmd.AddCommand(commentAddCmd())
	return cmd
}

func commentAddCmd() *cobra.Command {
	var opts engine.CommentCreateOptions
	var author string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a comment to a task or a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(author)
			if err != nil {
				return err
			}
			opts.Author = ref
			opts.ActorID = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateComment(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("created comment %d\n", c.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Content, "content", "", "comment text")
	cmd.Flags().StringVar(&author, "author", "", "author reference")
	cmd.Flags().Int64Var(&opts.TaskID, "task", 0, "task id")
	cmd.Flags().Int64Var(&opts.PostID, "post", 0, "post id")
	_ = cmd.MarkFlagRequired("content")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}
