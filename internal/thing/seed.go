package thing

import (
	"context"
	"fmt"

	"github.com/tmarren/shadow-core/internal/infrastructure/config"
)

// Seed upserts the configured things into the registry. Entries removed
// from configuration are kept in the database; deletion is an explicit
// operator action via the API.
func Seed(ctx context.Context, repo Repository, entries []config.ThingConfig) error {
	for _, entry := range entries {
		t := Thing{
			ID:      entry.ID,
			Name:    entry.Name,
			Address: entry.Address,
		}
		if err := repo.Upsert(ctx, &t); err != nil {
			return fmt.Errorf("seeding thing %q: %w", entry.ID, err)
		}
	}
	return nil
}
