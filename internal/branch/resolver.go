package branch

import (
	"context"

	"github.com/taller-erp/taller-erp/internal/auth"
)

// Resolver decides the effective branch of a principal.
type Resolver struct {
	store Store
}

// NewResolver constructs Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// CanSelect reports whether p may pick a branch explicitly. Users pinned to a
// branch never can, unless they are super admins.
func CanSelect(p auth.Principal) bool {
	if p.IsSuperAdmin {
		return true
	}
	return p.BranchID == 0
}

// Resolve returns the branch the request acts on. requested is the branch
// asked for by the client, zero when absent.
func (r *Resolver) Resolve(ctx context.Context, p auth.Principal, requested int64) (Branch, error) {
	if p.BranchID > 0 && !p.IsSuperAdmin {
		return r.store.Get(ctx, p.BranchID)
	}
	if requested > 0 && CanSelect(p) {
		b, err := r.store.Get(ctx, requested)
		if err != nil {
			return Branch{}, err
		}
		if !p.IsSuperAdmin && (p.TenantID == 0 || b.TenantID != p.TenantID) {
			return Branch{}, ErrOutOfScope
		}
		return b, nil
	}
	if p.BranchID > 0 {
		return r.store.Get(ctx, p.BranchID)
	}
	switch {
	case p.IsSuperAdmin:
		return r.first(ctx, 0)
	case p.TenantID > 0:
		return r.first(ctx, p.TenantID)
	}
	return Branch{}, ErrBranchUnresolved
}

func (r *Resolver) first(ctx context.Context, tenantID int64) (Branch, error) {
	branches, err := r.store.List(ctx, tenantID)
	if err != nil {
		return Branch{}, err
	}
	if len(branches) == 0 {
		return Branch{}, ErrBranchUnresolved
	}
	return branches[0], nil
}

// Scope describes the branches visible to a principal.
type Scope struct {
	Branches  []Branch
	CanSelect bool
	Current   int64
}

// Scope lists the branches p may operate on and the one used by default.
func (r *Resolver) Scope(ctx context.Context, p auth.Principal) (Scope, error) {
	scope := Scope{CanSelect: CanSelect(p), Branches: []Branch{}}
	switch {
	case p.IsSuperAdmin:
		all, err := r.store.List(ctx, 0)
		if err != nil {
			return Scope{}, err
		}
		scope.Branches = all
	case p.BranchID > 0:
		b, err := r.store.Get(ctx, p.BranchID)
		if err != nil {
			return Scope{}, err
		}
		scope.Branches = []Branch{b}
		scope.Current = b.ID
	case p.TenantID > 0:
		own, err := r.store.List(ctx, p.TenantID)
		if err != nil {
			return Scope{}, err
		}
		scope.Branches = own
		if len(own) <= 1 {
			scope.CanSelect = false
		}
	default:
		scope.CanSelect = false
	}
	if scope.Current == 0 && len(scope.Branches) > 0 {
		scope.Current = scope.Branches[0].ID
	}
	return scope, nil
}
