// reload-tickets removes the stored product lines of the given tickets so the
// next `ticketsync load` parses their text files again. Use it after changing
// the parser layout. Ticket rows are kept, so the tickets are not downloaded again.
//
// Usage: go run ./scripts/reload-tickets [-dry-run=false] <ticket-id>...
//
// Database connection: Uses standard PG* environment variables
//
// Flags:
//
//	-dry-run   Show what would be deleted without actually deleting (default: true)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"
)

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-dry-run=false] <ticket-id>...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		fmt.Fprintf(os.Stderr, "  -dry-run  Show what would be deleted without deleting (default: true)\n")
		os.Exit(1)
	}

	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(os.Stderr, "Invalid ticket ID: %q\n", arg)
			os.Exit(1)
		}
		ids = append(ids, id)
	}

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	if *dryRun {
		fmt.Println("DRY RUN - no changes will be made")
		fmt.Println("Run with -dry-run=false to actually delete product lines")
		fmt.Println()
	}

	total := 0
	for _, id := range ids {
		count, err := clearTicket(ctx, conn, id, *dryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing ticket %d: %v\n", id, err)
			os.Exit(1)
		}
		total += count
	}

	if *dryRun {
		fmt.Printf("\nTotal product lines that would be deleted: %d\n", total)
	} else {
		fmt.Printf("\nTotal product lines deleted: %d\n", total)
	}
}

// clearTicket deletes the product lines of one ticket.
// If dryRun is true, it only lists them.
func clearTicket(ctx context.Context, conn *pgx.Conn, ticketID int64, dryRun bool) (int, error) {
	if dryRun {
		rows, err := conn.Query(ctx, `
			SELECT quantity, product, total
			FROM products
			WHERE ticket_id = $1
		`, ticketID)
		if err != nil {
			return 0, fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()

		var count int
		for rows.Next() {
			var quantity, product, total *string
			if err := rows.Scan(&quantity, &product, &total); err != nil {
				return 0, fmt.Errorf("scan failed: %w", err)
			}
			count++
			fmt.Printf("  [%d] %s x %q = %s\n", ticketID, deref(quantity), deref(product), deref(total))
		}
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("rows iteration failed: %w", err)
		}

		if count == 0 {
			fmt.Printf("  [%d] No product lines\n", ticketID)
		}
		return count, nil
	}

	result, err := conn.Exec(ctx, `DELETE FROM products WHERE ticket_id = $1`, ticketID)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	count := int(result.RowsAffected())
	fmt.Printf("Deleted %d product lines of ticket %d\n", count, ticketID)
	return count, nil
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "tickets")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "tickets")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
