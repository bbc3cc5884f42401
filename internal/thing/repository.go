package thing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for thing persistence operations.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a thing by its unique identifier.
	// Returns ErrNotFound if the thing does not exist.
	GetByID(ctx context.Context, id string) (*Thing, error)

	// List retrieves all things, ordered by name.
	List(ctx context.Context) ([]Thing, error)

	// Create inserts a new thing.
	// Returns ErrExists if a thing with the same ID already exists.
	Create(ctx context.Context, t *Thing) error

	// Update modifies an existing thing.
	// Returns ErrNotFound if the thing does not exist.
	Update(ctx context.Context, t *Thing) error

	// Delete removes a thing by ID.
	// Returns ErrNotFound if the thing does not exist.
	Delete(ctx context.Context, id string) error

	// Upsert creates the thing or updates its name and address if it
	// already exists. Used for seeding the registry from configuration.
	Upsert(ctx context.Context, t *Thing) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a thing by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Thing, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, address, created_at, updated_at
		FROM things
		WHERE id = ?`, id)

	t, err := scanThing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying thing by id: %w", err)
	}
	return t, nil
}

// List retrieves all things, ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Thing, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, address, created_at, updated_at
		FROM things
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing things: %w", err)
	}
	defer rows.Close()

	var things []Thing
	for rows.Next() {
		t, err := scanThing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thing row: %w", err)
		}
		things = append(things, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating things: %w", err)
	}
	return things, nil
}

// Create inserts a new thing.
func (r *SQLiteRepository) Create(ctx context.Context, t *Thing) error {
	if err := validateID(t.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO things (id, name, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Address,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrExists, t.ID)
		}
		return fmt.Errorf("creating thing: %w", err)
	}
	return nil
}

// Update modifies an existing thing's name and address.
func (r *SQLiteRepository) Update(ctx context.Context, t *Thing) error {
	if err := validateID(t.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE things
		SET name = ?, address = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Address, now.Format(time.RFC3339), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating thing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}

	t.UpdatedAt = now
	return nil
}

// Delete removes a thing by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM things WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting thing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Upsert creates the thing or refreshes its name and address in place.
// CreatedAt is preserved for existing rows.
func (r *SQLiteRepository) Upsert(ctx context.Context, t *Thing) error {
	if err := validateID(t.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO things (id, name, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.Address,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting thing: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanThing.
type scanner interface {
	Scan(dest ...any) error
}

func scanThing(s scanner) (*Thing, error) {
	var t Thing
	var createdAt, updatedAt string
	if err := s.Scan(&t.ID, &t.Name, &t.Address, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	// Timestamps are written by us in RFC3339; parse errors leave zero times.
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return &t, nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.ContainsAny(id, "/+#") {
		// These characters have topic-level meaning on the transport.
		return fmt.Errorf("%w: %q contains topic metacharacters", ErrInvalidID, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
