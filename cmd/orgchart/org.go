package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orgchart/internal/engine"
	"orgchart/internal/hierarchy"
)

func orgCmd() *cobra.Command {
	org := &cobra.Command{
		Use:   "org",
		Short: "Query the reporting hierarchy",
		Long:  "Read-only questions about the tree: who sits below an author, who sits above, and who leads two people.",
	}
	org.AddCommand(orgSubordinatesCmd())
	org.AddCommand(orgAncestorsCmd())
	org.AddCommand(orgLeadCmd())
	org.AddCommand(orgPeersCmd())
	org.AddCommand(orgTreeCmd())
	org.AddCommand(orgCheckCmd())
	return org
}

func orgSubordinatesCmd() *cobra.Command {
	var start, end int
	cmd := &cobra.Command{
		Use:   "subordinates <author>",
		Short: "List subordinates between two levels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.BoundedSubordinates(ctx, ref, start, end)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable(table.Row{"ID", "Name", "Boss", "Distance"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.ID, r.Name, r.BossName, r.Distance})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&start, "start", 1, "first level to include")
	cmd.Flags().IntVar(&end, "end", 1, "last level to include")
	return cmd
}

func orgAncestorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ancestors <author>",
		Short: "List bosses up to the root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				names, err := e.AncestorChain(ctx, ref)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(names)
				}
				for i, n := range names {
					fmt.Printf("%d. %s\n", i+1, n)
				}
				return nil
			})
		},
	}
}

func orgLeadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lead <author> <author>",
		Short: "Closest common boss of two authors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lead, err := e.ClosestCommonAncestor(ctx, refs[0], refs[1])
				if errors.Is(err, engine.ErrNoCommonAncestor) {
					if viper.GetBool("json") {
						return printJSON(map[string]string{"failed": err.Error()})
					}
					return err
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"closest_lead": lead.Username})
				}
				fmt.Printf("%s (%s)\n", lead.Username, lead.Name)
				return nil
			})
		},
	}
}

func orgPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers <author>",
		Short: "Authors sharing the same boss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				peers, err := e.Peers(ctx, ref)
				if err != nil {
					return err
				}
				return printAuthors(peers)
			})
		},
	}
}

func orgTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [author]",
		Short: "Draw the hierarchy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ref hierarchy.Ref
			if len(args) == 1 {
				var err error
				if ref, err = parseRefArg(args[0]); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				node, err := e.Tree(ctx, ref)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(node)
				}
				printTree(node, "", true, true)
				return nil
			})
		},
	}
}

func orgCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the stored hierarchy is a single rooted tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				err := e.ValidateTree(ctx)
				if viper.GetBool("json") {
					out := map[string]any{"ok": err == nil}
					var ie *hierarchy.InvariantError
					if errors.As(err, &ie) {
						out["kind"] = ie.Kind
						out["author_id"] = ie.AuthorID
						out["error"] = ie.Error()
					} else if err != nil {
						return err
					}
					return printJSON(out)
				}
				if err != nil {
					return err
				}
				fmt.Println("hierarchy OK")
				return nil
			})
		},
	}
}
