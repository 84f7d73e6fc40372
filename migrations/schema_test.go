//go:build integration

package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsync/ticketsync/pkg/testhelpers"
)

// Test_001_Tickets verifies the tickets table shape
func Test_001_Tickets(t *testing.T) {
	storeDB := testhelpers.GetStoreDB(t)
	ctx := context.Background()

	scope, err := storeDB.DB.Acquire(ctx)
	require.NoError(t, err)
	defer scope.Close()

	columns := map[string]string{
		"id":         "integer",
		"created_at": "timestamp without time zone",
	}
	for colName, expectedType := range columns {
		var dataType string
		err := scope.Conn.QueryRow(ctx, `
			SELECT data_type
			FROM information_schema.columns
			WHERE table_name = 'tickets'
			AND column_name = $1
		`, colName).Scan(&dataType)
		require.NoError(t, err, "Column %s should exist", colName)
		assert.Equal(t, expectedType, dataType, "Column %s should have type %s", colName, expectedType)
	}
}

// Test_002_Products verifies the products table shape and its foreign key
func Test_002_Products(t *testing.T) {
	storeDB := testhelpers.GetStoreDB(t)
	ctx := context.Background()

	scope, err := storeDB.DB.Acquire(ctx)
	require.NoError(t, err)
	defer scope.Close()

	for _, colName := range []string{"quantity", "product", "pvp", "total"} {
		var dataType, nullable string
		err := scope.Conn.QueryRow(ctx, `
			SELECT data_type, is_nullable
			FROM information_schema.columns
			WHERE table_name = 'products'
			AND column_name = $1
		`, colName).Scan(&dataType, &nullable)
		require.NoError(t, err, "Column %s should exist", colName)
		assert.Equal(t, "text", dataType)
		assert.Equal(t, "YES", nullable, "Column %s should be nullable", colName)
	}

	var fkExists bool
	err = scope.Conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.table_constraints
			WHERE table_name = 'products'
			AND constraint_type = 'FOREIGN KEY'
		)
	`).Scan(&fkExists)
	require.NoError(t, err)
	assert.True(t, fkExists, "products should reference tickets")
}
