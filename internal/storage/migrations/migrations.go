// Package migrations applies the embedded schema files for both sinks:
// the ClickHouse candle tables and the Postgres ingestion-run catalog.
// Migrations are expected to be idempotent; files apply in lexical order.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// listSQL returns the .sql file names under dir in lexical order.
func listSQL(fsys embed.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
