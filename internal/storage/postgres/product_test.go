package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eshop/internal/domain/fault"
	"github.com/xenking/eshop/internal/domain/product"
)

func TestMergeChanges(t *testing.T) {
	got, err := mergeChanges([]product.StockChange{
		{ProductID: 3, Quantity: 1},
		{ProductID: 1, Quantity: 2},
		{ProductID: 3, Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, []product.StockChange{
		{ProductID: 1, Quantity: 2},
		{ProductID: 3, Quantity: 5},
	}, got)

	_, err = mergeChanges([]product.StockChange{{ProductID: 1, Quantity: 0}})
	assert.ErrorIs(t, err, fault.ErrInvalidArgument)
}
