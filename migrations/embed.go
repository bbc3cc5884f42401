// Package migrations embeds SQL migration files into the binary so Shadow
// Core can migrate its registry database without the files being present
// on the filesystem.
package migrations

import (
	"embed"

	"github.com/tmarren/shadow-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files sit at the root of the embedded FS
}
