package repositories

import (
	"context"
	"fmt"

	"github.com/ticketsync/ticketsync/pkg/database"
	"github.com/ticketsync/ticketsync/pkg/models"
)

// TicketRepository defines the interface for ticket ID persistence.
type TicketRepository interface {
	// KnownIDs returns every ticket ID ever stored, across all runs.
	KnownIDs(ctx context.Context) (models.TicketIDSet, error)

	// Insert stores a new ticket stamped with the server's current time.
	// Returns an error wrapping apperrors.ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, id int64) error
}

// ticketRepository implements TicketRepository using PostgreSQL.
type ticketRepository struct {
	db *database.DB
}

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(db *database.DB) TicketRepository {
	return &ticketRepository{db: db}
}

var _ TicketRepository = (*ticketRepository)(nil)

func (r *ticketRepository) KnownIDs(ctx context.Context) (models.TicketIDSet, error) {
	scope, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer scope.Close()

	rows, err := scope.Conn.Query(ctx, `SELECT id FROM tickets`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", database.Classify(err))
	}
	defer rows.Close()

	ids := models.NewTicketIDSet()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ticket id: %w", err)
		}
		ids.Add(id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", database.Classify(err))
	}

	return ids, nil
}

func (r *ticketRepository) Insert(ctx context.Context, id int64) error {
	scope, err := r.db.Acquire(ctx)
	if err != nil {
		return database.Classify(err)
	}
	defer scope.Close()

	_, err = scope.Conn.Exec(ctx, `INSERT INTO tickets (id, created_at) VALUES ($1, now())`, id)
	if err != nil {
		return fmt.Errorf("failed to insert ticket %d: %w", id, database.Classify(err))
	}

	return nil
}
