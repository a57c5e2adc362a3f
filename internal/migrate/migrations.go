package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

type Migration struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
}

func loadMigrations() ([]Migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		var v int
		_, err = fmt.Sscanf(f.Name(), "%d_", &v)
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		desc := strings.TrimSuffix(f.Name(), ".sql")
		if i := strings.Index(desc, "_"); i >= 0 {
			desc = strings.ReplaceAll(desc[i+1:], "_", " ")
		}
		migrations = append(migrations, Migration{
			Version:     v,
			Name:        f.Name(),
			Description: desc,
			UpSQL:       string(data),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies embedded migrations in order, recording each one in
// migration_history. Re-running against a current database is a no-op.
func Migrate(db *sql.DB) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS migration_history(
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("create migration_history: %w", err)
	}

	var currentVersion int
	err = tx.QueryRow(`SELECT COALESCE(MAX(version),0) FROM migration_history`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("read migration_history: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if _, err := tx.Exec(m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO migration_history(version,description,applied_at) VALUES (?,?,?)`,
			m.Version, m.Description, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		currentVersion = m.Version
	}
	return tx.Commit()
}
