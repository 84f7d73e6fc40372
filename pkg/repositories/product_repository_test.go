//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
	"github.com/ticketsync/ticketsync/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestProductRepository_InsertLineAndKnownTicketIDs(t *testing.T) {
	storeDB := setupStoreTest(t)
	tickets := NewTicketRepository(storeDB.DB)
	products := NewProductRepository(storeDB.DB)
	ctx := context.Background()

	require.NoError(t, tickets.Insert(ctx, 101))
	require.NoError(t, tickets.Insert(ctx, 102))

	for _, line := range []*models.ProductLine{
		{TicketID: 101, Quantity: strPtr("1"), Product: strPtr("LECHE ENTERA"), PVP: strPtr("0.89"), Total: strPtr("0.89")},
		{TicketID: 101, Quantity: strPtr("2"), Product: strPtr("PAN BARRA"), PVP: strPtr("0.45"), Total: strPtr("0.90")},
	} {
		require.NoError(t, products.InsertLine(ctx, line))
	}

	ids, err := products.KnownTicketIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{101}, ids.Sorted(), "ticket 102 has no lines yet")
}

func TestProductRepository_InsertLineStoresNulls(t *testing.T) {
	storeDB := setupStoreTest(t)
	tickets := NewTicketRepository(storeDB.DB)
	products := NewProductRepository(storeDB.DB)
	ctx := context.Background()

	require.NoError(t, tickets.Insert(ctx, 150))
	require.NoError(t, products.InsertLine(ctx, &models.ProductLine{
		TicketID: 150,
		Product:  strPtr("BOLSA"),
	}))

	scope, err := storeDB.DB.Acquire(ctx)
	require.NoError(t, err)
	defer scope.Close()

	var quantity, pvp, total *string
	err = scope.Conn.QueryRow(ctx,
		`SELECT quantity, pvp, total FROM products WHERE ticket_id = 150`).Scan(&quantity, &pvp, &total)
	require.NoError(t, err)
	assert.Nil(t, quantity)
	assert.Nil(t, pvp)
	assert.Nil(t, total)
}

func TestProductRepository_InsertLineUnknownTicket(t *testing.T) {
	storeDB := setupStoreTest(t)
	products := NewProductRepository(storeDB.DB)
	ctx := context.Background()

	err := products.InsertLine(ctx, &models.ProductLine{TicketID: 999, Product: strPtr("ORPHAN")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConstraintViolation)

	ids, err := products.KnownTicketIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "failed insert must be rolled back")
}
