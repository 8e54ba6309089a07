package shared

import "fmt"

// BranchCloseLockKey builds the redis key guarding register closes of a branch.
func BranchCloseLockKey(branchID int64) string {
	return fmt.Sprintf("caja:branch:%d:close-lock", branchID)
}

// BranchCacheKey builds the redis key holding cached branch metadata.
func BranchCacheKey(branchID int64) string {
	return fmt.Sprintf("caja:branch:%d:meta", branchID)
}

// BranchListCacheKey builds the redis key holding the branch list of a tenant.
// Tenant zero holds the list of every branch.
func BranchListCacheKey(tenantID int64) string {
	return fmt.Sprintf("caja:branches:tenant:%d", tenantID)
}
