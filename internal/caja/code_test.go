package caja

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterCode(t *testing.T) {
	require.Equal(t, "#CJ-SN-007", RegisterCode("Sucursal Núñez", 7))
	require.Equal(t, "#CJ-TMDN-012", RegisterCode("Taller Mecánico del Norte Oeste", 12))
	require.Equal(t, "#CJ-P-001", RegisterCode("", 0))
	require.Equal(t, "#CJ-C-1000", RegisterCode("córdoba", 1000))
}

func TestBranchInitialsSkipsPunctuation(t *testing.T) {
	require.Equal(t, "SA", BranchInitials("  San-Ángel  "))
	require.Equal(t, "P", BranchInitials("!!!"))
}
