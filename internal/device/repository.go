package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sighting is the persisted history of one blind controller across runs.
// This matches migrations/20260301_120000_device_sightings.up.sql.
type Sighting struct {
	ID           string       `json:"id"`
	Kind         IdentityKind `json:"kind"`
	Name         string       `json:"name,omitempty"`
	Address      string       `json:"address,omitempty"`
	FirstSeen    time.Time    `json:"first_seen"`
	LastSeen     time.Time    `json:"last_seen"`
	ConnectCount int          `json:"connect_count"`
}

// Repository defines sighting persistence.
// This abstraction allows unit testing without database dependencies.
type Repository interface {
	// RecordConnect upserts the sighting for dev and increments its connect count.
	RecordConnect(ctx context.Context, dev Device) error

	// Get returns the sighting for an identity.
	// Returns ErrDeviceNotFound if the device was never seen.
	Get(ctx context.Context, id Identity) (*Sighting, error)

	// List returns every sighting, most recently seen first.
	List(ctx context.Context) ([]Sighting, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordConnect upserts the sighting for dev.
func (r *SQLiteRepository) RecordConnect(ctx context.Context, dev Device) error {
	if dev.ID.IsZero() {
		return fmt.Errorf("%w: empty identity", ErrInvalidDevice)
	}

	now := r.now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO device_sightings (id, kind, name, address, first_seen, last_seen, connect_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (id, kind) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			last_seen = excluded.last_seen,
			connect_count = device_sightings.connect_count + 1`

	_, err := r.db.ExecContext(ctx, query,
		dev.ID.Value,
		string(dev.ID.Kind),
		nullableString(dev.Name),
		nullableString(dev.Address),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("recording sighting: %w", err)
	}
	return nil
}

// Get returns the sighting for an identity.
func (r *SQLiteRepository) Get(ctx context.Context, id Identity) (*Sighting, error) {
	query := `
		SELECT id, kind, name, address, first_seen, last_seen, connect_count
		FROM device_sightings
		WHERE id = ? AND kind = ?`

	s, err := scanSighting(r.db.QueryRowContext(ctx, query, id.Value, string(id.Kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying sighting: %w", err)
	}
	return s, nil
}

// List returns every sighting, most recently seen first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Sighting, error) {
	query := `
		SELECT id, kind, name, address, first_seen, last_seen, connect_count
		FROM device_sightings
		ORDER BY last_seen DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sightings: %w", err)
	}
	defer rows.Close()

	var sightings []Sighting
	for rows.Next() {
		s, err := scanSighting(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sighting: %w", err)
		}
		sightings = append(sightings, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sightings: %w", err)
	}
	return sightings, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSighting(row rowScanner) (*Sighting, error) {
	var s Sighting
	var kind string
	var name, address sql.NullString
	var firstSeen, lastSeen string

	if err := row.Scan(&s.ID, &kind, &name, &address, &firstSeen, &lastSeen, &s.ConnectCount); err != nil {
		return nil, err
	}

	s.Kind = IdentityKind(kind)
	s.Name = name.String
	s.Address = address.String

	var err error
	if s.FirstSeen, err = time.Parse(time.RFC3339, firstSeen); err != nil {
		return nil, fmt.Errorf("parsing first_seen: %w", err)
	}
	if s.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	return &s, nil
}

// nullableString stores empty strings as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
