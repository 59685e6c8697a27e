package btree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corta-db/jardb/btree"
)

func TestDeterminePicksLargestFittingDegree(t *testing.T) {
	def, err := btree.Determine(btree.DetermineRequest{
		PageSize:          4096,
		KeyKind:           btree.KeyKindUint64,
		KeySize:           8,
		ValueKind:         btree.ValueKindUint64,
		Variable:          false,
		DeclaredValueSize: 8,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, def.K, 2)
	require.LessOrEqual(t, def.K, 254)
	require.Equal(t, 8, def.InCellValueSize)
}

func TestDetermineRejectsImpossibleLayout(t *testing.T) {
	// A page barely larger than the minimum possible cellpage overhead
	// cannot fit even the smallest degree's interior and leaf cells
	// once a variable-length header is required.
	_, err := btree.Determine(btree.DetermineRequest{
		PageSize:          64,
		KeyKind:           btree.KeyKindBytes,
		KeySize:           32,
		ValueKind:         btree.ValueKindBytes,
		Variable:          true,
		DeclaredValueSize: 256,
	})
	require.Error(t, err)
}

func TestDetermineVariableRespectsHeaderFloor(t *testing.T) {
	def, err := btree.Determine(btree.DetermineRequest{
		PageSize:          4096,
		KeyKind:           btree.KeyKindUint64,
		KeySize:           8,
		ValueKind:         btree.ValueKindBytes,
		Variable:          true,
		DeclaredValueSize: 64,
	})
	require.NoError(t, err)
	require.Equal(t, 64, def.InCellValueSize)
}
