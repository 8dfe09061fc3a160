// Package integration resolves the read-only app_id -> company mapping
// that the template and consent projections use to scope their work.
// The core never writes to this table; it is owned by the platform
// that registers webhook-integrated apps.
package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wpphooks/ingestcore/internal/model"
)

// ErrNotActive is returned when the app_id exists but is not active,
// or does not exist at all — callers treat both the same way.
var ErrNotActive = errors.New("integration not found or inactive")

// Repository resolves app_id to an active IntegrationMapping.
type Repository interface {
	Lookup(ctx context.Context, tx *sql.Tx, appID string) (*model.IntegrationMapping, error)
}

// MySQLRepository implements Repository against the integration table.
type MySQLRepository struct{}

// NewMySQLRepository constructs a MySQLRepository.
func NewMySQLRepository() *MySQLRepository {
	return &MySQLRepository{}
}

// Lookup returns the mapping for appID, or ErrNotActive if missing or
// inactive. Only active mappings are ever consulted by projections.
func (r *MySQLRepository) Lookup(ctx context.Context, tx *sql.Tx, appID string) (*model.IntegrationMapping, error) {
	const query = `
		SELECT id, app_id, company_id, is_active
		FROM integration
		WHERE app_id = ? AND is_active = 1
	`
	var m model.IntegrationMapping
	err := tx.QueryRowContext(ctx, query, appID).Scan(&m.ID, &m.AppID, &m.CompanyID, &m.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotActive
		}
		return nil, fmt.Errorf("lookup integration: %w", err)
	}
	return &m, nil
}
