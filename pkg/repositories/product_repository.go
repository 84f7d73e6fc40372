package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ticketsync/ticketsync/pkg/database"
	"github.com/ticketsync/ticketsync/pkg/models"
)

// ProductRepository defines the interface for parsed product line persistence.
type ProductRepository interface {
	// KnownTicketIDs returns the distinct ticket IDs that have at least one product line.
	KnownTicketIDs(ctx context.Context) (models.TicketIDSet, error)

	// InsertLine stores one product line in its own transaction. On failure
	// the transaction is rolled back and the classified error returned
	// (apperrors.ErrConstraintViolation or apperrors.ErrStore).
	InsertLine(ctx context.Context, line *models.ProductLine) error
}

// productRepository implements ProductRepository using PostgreSQL.
type productRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db *database.DB) ProductRepository {
	return &productRepository{db: db}
}

var _ ProductRepository = (*productRepository)(nil)

func (r *productRepository) KnownTicketIDs(ctx context.Context) (models.TicketIDSet, error) {
	scope, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer scope.Close()

	rows, err := scope.Conn.Query(ctx, `SELECT DISTINCT ticket_id FROM products`)
	if err != nil {
		return nil, fmt.Errorf("failed to list parsed tickets: %w", database.Classify(err))
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan parsed ticket ids: %w", database.Classify(err))
	}

	return models.NewTicketIDSet(ids...), nil
}

func (r *productRepository) InsertLine(ctx context.Context, line *models.ProductLine) error {
	scope, err := r.db.Acquire(ctx)
	if err != nil {
		return database.Classify(err)
	}
	defer scope.Close()

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", database.Classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO products (ticket_id, quantity, product, pvp, total)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = tx.Exec(ctx, query,
		line.TicketID,
		line.Quantity,
		line.Product,
		line.PVP,
		line.Total,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product line for ticket %d: %w", line.TicketID, database.Classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit product line for ticket %d: %w", line.TicketID, database.Classify(err))
	}

	return nil
}
