package database

import (
	"database/sql"
	"fmt"
	"sort"

	dbsql "github.com/navariltd/disburser/pkg/database/sql"
)

// ApplySchema executes the embedded schema files in lexical order. The
// statements are idempotent (CREATE IF NOT EXISTS), so running at every
// startup is safe.
func ApplySchema(db *sql.DB) error {
	entries, err := dbsql.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := dbsql.Content.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
	}

	return nil
}
