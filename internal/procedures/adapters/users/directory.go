package users

import (
	"context"
	"database/sql"
	"errors"

	pricing "qxlog/internal/pricing/domain"
)

// Directory reads instrumentist pay-scheme flags from the users table.
type Directory struct {
	db *sql.DB
}

// NewDirectory constructs a directory over db.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// GetInstrumentist returns nil when no such user exists.
func (d *Directory) GetInstrumentist(ctx context.Context, id string) (*pricing.Instrumentist, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("users directory: nil db")
	}
	var enabled bool
	err := d.db.QueryRowContext(ctx, `SELECT pay_scheme_enabled FROM users WHERE id = $1`, id).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &pricing.Instrumentist{ID: id, PaySchemeEnabled: enabled}, nil
}

// StaticDirectory is a fixed in-memory directory.
type StaticDirectory map[string]bool

// GetInstrumentist returns nil when id is unknown.
func (d StaticDirectory) GetInstrumentist(ctx context.Context, id string) (*pricing.Instrumentist, error) {
	_ = ctx
	enabled, ok := d[id]
	if !ok {
		return nil, nil
	}
	return &pricing.Instrumentist{ID: id, PaySchemeEnabled: enabled}, nil
}
