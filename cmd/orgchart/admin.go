package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"orgchart/internal/config"
	"orgchart/internal/engine"
	"orgchart/internal/migrate"
	"orgchart/internal/repo"
	"orgchart/internal/seed"
	"orgchart/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer w.Close()
			if addr == "" {
				addr = w.Config.Server.Addr
			}
			if basePath == "" {
				basePath = w.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:      w.Engine,
				BasePath:    basePath,
				CORSOrigins: w.Config.Server.CORSOrigins,
				Log:         w.Log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				w.Log.WithFields(log.Fields{"addr": addr, "base_path": basePath, "mode": w.Config.Traversal.Mode}).
					Infof("serving orgchart API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), w.Config.Server.ShutdownTimeout)
				defer cancel()
				w.Log.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer w.Close()
			history, err := migrate.History(ctx, w.DB)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"report": w.Migrations, "history": history})
			}
			for _, name := range w.Migrations.Applied {
				fmt.Println("applied", name)
			}
			tw := newTable(table.Row{"Version", "Name", "Applied At"})
			for _, h := range history {
				tw.AppendRow(table.Row{h.Version, h.Name, h.AppliedAt})
			}
			tw.Render()
			fmt.Printf("schema at version %d\n", w.SchemaVersion)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var scenario, reset bool
	var authors, tasks, posts, comments int
	var seedValue uint64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the workspace with generated or demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer w.Close()
			if reset {
				if err := (repo.Repo{DB: w.DB}).Reset(ctx); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
				w.Engine.InvalidateSnapshot(ctx)
				w.Log.Info("workspace data cleared")
			}
			var res seed.Result
			if scenario {
				res, err = seed.Scenario(ctx, w.Engine, actor())
			} else {
				opts := seed.FromConfig(w.Config.Seed)
				flags := cmd.Flags()
				if flags.Changed("authors") {
					opts.Authors = authors
				}
				if flags.Changed("tasks") {
					opts.Tasks = tasks
				}
				if flags.Changed("posts") {
					opts.Posts = posts
				}
				if flags.Changed("comments") {
					opts.Comments = comments
				}
				if flags.Changed("seed") {
					opts.Seed = seedValue
				}
				opts.ActorID = actor()
				opts.Log = w.Log
				res, err = seed.Run(ctx, w.Engine, opts)
			}
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			fmt.Printf("seeded %d authors, %d tasks, %d posts, %d comments (root %s)\n",
				res.Authors, res.Tasks, res.Posts, res.Comments, res.Root.Username)
			return nil
		},
	}
	cmd.Flags().BoolVar(&scenario, "scenario", false, "load the five-person demo organization")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing data first")
	cmd.Flags().IntVar(&authors, "authors", 0, "number of authors (default from config)")
	cmd.Flags().IntVar(&tasks, "tasks", 0, "number of tasks (default from config)")
	cmd.Flags().IntVar(&posts, "posts", 0, "number of posts (default from config)")
	cmd.Flags().IntVar(&comments, "comments", 0, "number of comments (default from config)")
	cmd.Flags().Uint64Var(&seedValue, "seed", 0, "generator seed (default from config)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in " + config.FileName + " at the workspace root. Missing keys take their defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log", Long: "Every change is written to the event log with its actor and payload."}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range evts {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}
