package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orgchart/internal/app"
	"orgchart/internal/config"
	"orgchart/internal/db"
	"orgchart/internal/domain"
	"orgchart/internal/engine"
	"orgchart/internal/hierarchy"
)

var rootCmd = &cobra.Command{
	Use:   "orgchart",
	Short: "Organization hierarchy and ownership queries",
	Long: `orgchart answers questions about who reports to whom and who owns what.
- Authors form one tree: every author but the root has a boss.
- Refer to an author as id:<n>, account:<username> or by display name; a shared
  name resolves to the lowest id unless lookup.strict_names is set.
- Tasks have one or more owners and move through new, in_progress, finished,
  delayed and canceled.
- Every change is recorded in the event log, see 'orgchart log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("db") != "" {
			return nil
		}
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ORGCHART")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (default <workspace>/"+config.FileName+")")
	flags.String("db", "", "database path (default <workspace>/.orgchart/orgchart.db)")
	flags.Bool("json", false, "output JSON")
	flags.String("actor", "local-user", "actor recorded in the event log")
	flags.String("mode", "", "traversal mode override: walk or closure")
	flags.Bool("strict-names", false, "reject display names shared by several authors")
	flags.String("log-level", "", "log level override")
	for _, name := range []string{"workspace", "config", "db", "json", "actor", "mode", "strict-names", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(authorCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(logCmd())
}

// --- helpers ---

// loadConfig reads the config file and applies flag and env overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.Load(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if mode := viper.GetString("mode"); mode != "" {
		cfg.Traversal.Mode = mode
	}
	if viper.GetBool("strict-names") {
		cfg.Lookup.StrictNames = true
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openWorkspace(ctx context.Context) (*app.Workspace, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		DBPath:    viper.GetString("db"),
		Config:    cfg,
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer w.Close()
	return fn(ctx, w.Engine)
}

func actor() string {
	return viper.GetString("actor")
}

func parseRefArg(s string) (hierarchy.Ref, error) {
	return hierarchy.ParseRef(s)
}

func parseRefs(items []string) ([]hierarchy.Ref, error) {
	refs := make([]hierarchy.Ref, 0, len(items))
	for _, item := range items {
		ref, err := hierarchy.ParseRef(item)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printAuthors(authors []domain.Author) error {
	if viper.GetBool("json") {
		return printJSON(authors)
	}
	tw := newTable(table.Row{"ID", "Name", "Username", "Boss", "Age", "Height"})
	for _, a := range authors {
		boss := ""
		if a.BossID != nil {
			boss = fmt.Sprintf("%d", *a.BossID)
		}
		tw.AppendRow(table.Row{a.ID, a.Name, a.Username, boss, a.Age, fmt.Sprintf("%.2f", a.Height)})
	}
	tw.Render()
	return nil
}

func printTaskRows(rows []domain.TaskRow, withComments bool) error {
	if viper.GetBool("json") {
		return printJSON(rows)
	}
	header := table.Row{"Task", "Headline", "State", "Date", "Owner", "Username"}
	if withComments {
		header = append(header, "Comments")
	}
	tw := newTable(header)
	for _, r := range rows {
		due := ""
		if r.Date != nil {
			due = *r.Date
		}
		row := table.Row{r.TaskID, r.Headline, r.State, due, r.Author, r.Username}
		if withComments {
			row = append(row, len(r.Comments))
		}
		tw.AppendRow(row)
	}
	tw.Render()
	return nil
}

// printTree draws the hierarchy with box-drawing connectors.
func printTree(n hierarchy.Node, prefix string, last, top bool) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	if top {
		connector, childPrefix = "", ""
	}
	fmt.Printf("%s%s%s (%s)\n", prefix, connector, n.Name, n.Username)
	for i, c := range n.Children {
		printTree(c, childPrefix, i == len(n.Children)-1, false)
	}
}
