package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eshop/internal/storage/memory"
)

func TestLoad_Idempotent(t *testing.T) {
	ctx := context.Background()
	products := memory.NewProductStore()
	users := memory.NewUserStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Load(ctx, products, users, now))
	require.NoError(t, Load(ctx, products, users, now))

	ps, err := products.List(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 4)
	assert.Equal(t, "iPhone 15 Pro", ps[0].Name)
	assert.Equal(t, int64(1), ps[0].ID)

	us, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, us, 2)
	assert.Equal(t, "alisa@example.com", us[0].Email)
}
