package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 45, p.Total)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 0, p.Offset())
}

func TestPaginationOffset(t *testing.T) {
	p := NewPagination(3, 15, 100)
	require.Equal(t, 30, p.Offset())
	require.Equal(t, 7, p.TotalPages)
}
