package auth

import (
	"fmt"
	"time"

	"github.com/taller-erp/taller-erp/internal/platform/httpx"
)

// User represents an account allowed to operate registers.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	BranchID     int64
	TenantID     int64
	IsSuperAdmin bool
	IsActive     bool
	CreatedAt    time.Time
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID       int64  `json:"user_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	BranchID     int64  `json:"branch_id,omitempty"`
	TenantID     int64  `json:"tenant_id,omitempty"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// PrincipalFor derives the request identity of u.
func PrincipalFor(u User) Principal {
	return Principal{
		UserID:       u.ID,
		Name:         u.Name,
		Email:        u.Email,
		BranchID:     u.BranchID,
		TenantID:     u.TenantID,
		IsSuperAdmin: u.IsSuperAdmin,
	}
}

// Session is an issued bearer token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
}

var (
	// ErrTokenInvalid indicates a missing, expired or revoked bearer token.
	ErrTokenInvalid = fmt.Errorf("%w: invalid or expired token", httpx.ErrUnauthorized)
)
