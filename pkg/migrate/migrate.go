package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written during development.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Applied describes one migration that ran.
type Applied struct {
	Version  int64
	Path     string
	Duration time.Duration
}

// State is one row of the status report.
type State struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return sub
}

// Source picks the migration set. An empty dir means the embedded set.
func Source(dir string) fs.FS {
	if dir == "" {
		return Embedded()
	}
	return os.DirFS(dir)
}

func newProvider(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, fsys fs.FS) ([]Applied, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}
	defer provider.Close()
	results, err := provider.Up(ctx)
	if err != nil {
		return applied(results), fmt.Errorf("goose up: %w", err)
	}
	return applied(results), nil
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB, fsys fs.FS) ([]Applied, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}
	defer provider.Close()
	result, err := provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return applied([]*goose.MigrationResult{result}), nil
}

// To moves the schema up or down until target is the current version.
func To(ctx context.Context, db *sql.DB, fsys fs.FS, target int64) ([]Applied, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}
	defer provider.Close()

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("current version: %w", err)
	}
	var results []*goose.MigrationResult
	switch {
	case target == current:
		return nil, nil
	case target > current:
		results, err = provider.UpTo(ctx, target)
	default:
		results, err = provider.DownTo(ctx, target)
	}
	if err != nil {
		return applied(results), fmt.Errorf("goose to %d: %w", target, err)
	}
	return applied(results), nil
}

func Status(ctx context.Context, db *sql.DB, fsys fs.FS) ([]State, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}
	defer provider.Close()
	rows, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]State, 0, len(rows))
	for _, row := range rows {
		out = append(out, State{
			Version:   row.Source.Version,
			Path:      row.Source.Path,
			Applied:   row.State == goose.StateApplied,
			AppliedAt: row.AppliedAt,
		})
	}
	return out, nil
}

func applied(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, result := range results {
		if result == nil || result.Source == nil {
			continue
		}
		out = append(out, Applied{Version: result.Source.Version, Path: result.Source.Path, Duration: result.Duration})
	}
	return out
}
