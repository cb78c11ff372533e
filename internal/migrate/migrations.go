package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Step is one embedded schema file, numbered by its filename prefix.
type Step struct {
	Version int
	Name    string
	SQL     string
}

// Report describes a migration run.
type Report struct {
	From    int      `json:"from"`
	To      int      `json:"to"`
	Applied []string `json:"applied"`
}

// Applied is a row of the schema_migrations ledger.
type Applied struct {
	Version   int    `json:"version"`
	Name      string `json:"name"`
	AppliedAt string `json:"applied_at"`
}

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations(
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TEXT NOT NULL
);`

func steps() ([]Step, error) {
	entries, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	out := make([]Step, 0, len(entries))
	seen := map[int]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", entry.Name())
		}
		v, err := strconv.Atoi(prefix)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: bad version prefix %q", entry.Name(), prefix)
		}
		if other, dup := seen[v]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, entry.Name(), v)
		}
		seen[v] = entry.Name()
		body, err := migrationsFS.ReadFile("sql/" + entry.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Step{Version: v, Name: entry.Name(), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Latest is the highest embedded schema version.
func Latest() (int, error) {
	all, err := steps()
	if err != nil || len(all) == 0 {
		return 0, err
	}
	return all[len(all)-1].Version, nil
}

// Migrate applies pending migrations with a background context.
func Migrate(db *sql.DB) error {
	_, err := Up(context.Background(), db, nil)
	return err
}

// Up applies every pending migration inside one transaction and records
// each in schema_migrations. A nil logger discards progress messages.
func Up(ctx context.Context, db *sql.DB, logger log.FieldLogger) (Report, error) {
	all, err := steps()
	if err != nil {
		return Report{}, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Report{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, ledgerDDL); err != nil {
		return Report{}, fmt.Errorf("create schema_migrations: %w", err)
	}
	var current int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return Report{}, fmt.Errorf("read schema version: %w", err)
	}
	rep := Report{From: current, To: current, Applied: []string{}}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, s := range all {
		if s.Version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.SQL); err != nil {
			return Report{}, fmt.Errorf("migration %s: %w", s.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, ?)`, s.Version, s.Name, now); err != nil {
			return Report{}, fmt.Errorf("record migration %s: %w", s.Name, err)
		}
		if logger != nil {
			logger.WithFields(log.Fields{"version": s.Version, "name": s.Name}).Info("applied migration")
		}
		rep.Applied = append(rep.Applied, s.Name)
		rep.To = s.Version
	}
	if err := tx.Commit(); err != nil {
		return Report{}, err
	}
	return rep, nil
}

// History lists the recorded migrations, oldest first.
func History(ctx context.Context, db *sql.DB) ([]Applied, error) {
	if _, err := db.ExecContext(ctx, ledgerDDL); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Version, &a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
