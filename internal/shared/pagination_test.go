package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageRequestClamps(t *testing.T) {
	require.Equal(t, PageRequest{Page: 1, PerPage: DefaultPerPage}, NewPageRequest(0, 0))
	require.Equal(t, PageRequest{Page: 3, PerPage: MaxPerPage}, NewPageRequest(3, 500))
	require.Equal(t, 40, NewPageRequest(3, 20).Offset())
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 5, 11)
	require.Equal(t, Pagination{Page: 2, PerPage: 5, Total: 11, TotalPages: 3}, p)
	require.Equal(t, 0, NewPagination(1, 20, 0).TotalPages)
}
