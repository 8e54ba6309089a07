package branch

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads branches from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns a branch by id.
func (r *Repository) Get(ctx context.Context, id int64) (Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `SELECT s.id, s.nombre, COALESCE(s.id_tenant, 0), COALESCE(t.nombre, '')
FROM sucursal s LEFT JOIN tenant t ON t.id = s.id_tenant
WHERE s.id=$1`, id).Scan(&b.ID, &b.Name, &b.TenantID, &b.TenantName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, ErrBranchNotFound
		}
		return Branch{}, err
	}
	return b, nil
}

// List returns branches ordered by id, restricted to tenantID when non-zero.
func (r *Repository) List(ctx context.Context, tenantID int64) ([]Branch, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.nombre, COALESCE(s.id_tenant, 0), COALESCE(t.nombre, '')
FROM sucursal s LEFT JOIN tenant t ON t.id = s.id_tenant
WHERE ($1::bigint = 0 OR s.id_tenant=$1)
ORDER BY s.id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	branches := []Branch{}
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.TenantID, &b.TenantName); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

var _ Store = (*Repository)(nil)
