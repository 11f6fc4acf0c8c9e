package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
)

const versionLength = len("20060102150405")

// parseFilename splits YYYYMMDDHHMMSS_name.sql into its version and name.
func parseFilename(filename string) (int64, string, error) {
	stem, ok := strings.CutSuffix(filename, ".sql")
	if !ok {
		return 0, "", fmt.Errorf("%q is not a .sql file", filename)
	}
	stamp, name, ok := strings.Cut(stem, "_")
	if !ok || len(stamp) != versionLength || name == "" || sanitizeName(name) != name {
		return 0, "", fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", filename)
	}
	version, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid migration version in %q: %w", filename, err)
	}
	return version, name, nil
}

// ValidateFS checks every migration in fsys is well named, unique by version
// and carries both goose sections with Up before Down.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	seen := map[int64]string{}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		version, _, err := parseFilename(entry.Name())
		if err != nil {
			return err
		}
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return fmt.Errorf("read %q: %w", entry.Name(), err)
		}
		up := strings.Index(string(body), "-- +goose Up")
		down := strings.Index(string(body), "-- +goose Down")
		switch {
		case up < 0:
			return fmt.Errorf("migration %q missing \"-- +goose Up\"", entry.Name())
		case down < 0:
			return fmt.Errorf("migration %q missing \"-- +goose Down\"", entry.Name())
		case down < up:
			return fmt.Errorf("migration %q has Down before Up", entry.Name())
		}
	}
	return nil
}

func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// latestVersion returns the highest version in dir, or zero when it holds none.
func latestVersion(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var latest int64
	for _, entry := range entries {
		if version, _, err := parseFilename(entry.Name()); err == nil && version > latest {
			latest = version
		}
	}
	return latest, nil
}
