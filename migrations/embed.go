// Package migrations embeds the discovery database schema into the binary.
//
// Importing the package (usually with a blank import) registers the files
// with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.RegisterMigrations(migrationsFS)
}
