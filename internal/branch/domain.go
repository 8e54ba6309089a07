// Package branch resolves which branch a request operates on.
package branch

import (
	"context"
	"fmt"

	"github.com/taller-erp/taller-erp/internal/platform/httpx"
)

// Branch is a workshop location owning one register and one petty-cash account.
type Branch struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	TenantID   int64  `json:"tenant_id,omitempty"`
	TenantName string `json:"tenant_name,omitempty"`
}

// Store reads branches. A zero tenantID lists every branch.
type Store interface {
	Get(ctx context.Context, id int64) (Branch, error)
	List(ctx context.Context, tenantID int64) ([]Branch, error)
}

var (
	ErrBranchNotFound   = fmt.Errorf("%w: branch not found", httpx.ErrNotFound)
	ErrOutOfScope       = fmt.Errorf("%w: branch outside of user scope", httpx.ErrForbidden)
	ErrBranchUnresolved = fmt.Errorf("%w: branch not specified", httpx.ErrValidation)
)
