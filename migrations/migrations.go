// Package migrations embeds the schema so the migrate command works from any
// directory.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var FS embed.FS

const downMarker = "-- +migrate Down"

// NotifyChannel is the channel notify_watchers() publishes row changes on.
const NotifyChannel = "watchers"

type Migration struct {
	Name string
	Up   string
}

// List returns the embedded migrations in filename order, with everything
// after the down marker stripped.
func List() ([]Migration, error) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		content, err := FS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		up, _, _ := strings.Cut(string(content), downMarker)
		migrations = append(migrations, Migration{Name: name, Up: up})
	}
	return migrations, nil
}
