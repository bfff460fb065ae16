// Seed loads sample tasks for one user. Run from project root: go run ./scripts/seed -user alice
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"taskboard/internal/config"
	"taskboard/internal/database"
	"taskboard/internal/models"
)

var (
	categories = []string{"Work", "Personal", "Study", "Home", "Errands"}
	priorities = []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityNormal, models.PriorityLow}
)

func main() {
	_ = godotenv.Load()
	user := flag.String("user", "seed-user", "owner of the seeded tasks")
	total := flag.Int("n", 200, "number of tasks")
	flag.Parse()

	ctx := context.Background()

	// Schema goes through the service's own migration path.
	if db := database.InitDB(ctx); db == nil {
		fmt.Fprintln(os.Stderr, "DATABASE_URL not set or DB connection failed")
		os.Exit(1)
	}
	if err := database.MigrateOrCreateSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, config.Get().DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Unable to connect:", err)
		os.Exit(1)
	}
	defer pool.Close()

	start := time.Now()
	today := models.DateOf(start)
	rows := make([][]any, 0, *total)
	for i := 0; i < *total; i++ {
		var due any
		if i%4 != 0 {
			due = today.AddDays(i%21 - 3).In(time.UTC)
		}
		completed := i%5 == 0
		var completedAt any
		if completed {
			completedAt = start
		}
		rows = append(rows, []any{
			uuid.New().String(),
			*user,
			fmt.Sprintf("Task %d", i+1),
			categories[i%len(categories)],
			string(priorities[i%len(priorities)]),
			due,
			completed,
			completedAt,
			start,
			start,
		})
	}

	n, err := pool.CopyFrom(ctx,
		pgx.Identifier{"tasks"},
		[]string{"id", "user_id", "text", "category", "priority", "due_date", "completed", "completed_at", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Copy failed:", err)
		os.Exit(1)
	}

	fmt.Printf("Done: %d tasks for %s in %v\n", n, *user, time.Since(start))
}
