package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/trivia/go/internal/content"
	"github.com/mcdev12/trivia/go/internal/dbconfig"
)

type counts struct {
	inserted int
	skipped  int
	errs     int
}

func main() {
	path := flag.String("file", "go/internal/content/testdata/questions.yaml", "YAML question bank")
	flag.Parse()

	// 1) Load the YAML question bank
	seed, err := content.LoadSeedFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load seed: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, content.SchemaSQL()); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Upsert categories, insert questions not already present
	var total counts
	for _, c := range seed.Categories {
		n, err := seedCategory(ctx, pool, c)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding category %q: %v\n", c.Name, err)
			total.errs++
			continue
		}
		total.inserted += n.inserted
		total.skipped += n.skipped
		total.errs += n.errs
	}

	// 4) Print summary
	fmt.Printf(
		"Questions seed complete: %d categories, %d inserted, %d skipped, %d errors\n",
		len(seed.Categories), total.inserted, total.skipped, total.errs,
	)
}

// seedCategory runs in one transaction so a category is never left half seeded.
func seedCategory(ctx context.Context, pool *pgxpool.Pool, c content.SeedCategory) (counts, error) {
	var n counts
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var categoryID uuid.UUID
		err := tx.QueryRow(ctx, `
            INSERT INTO trivia_categories (id, name, description)
            VALUES ($1, $2, $3)
            ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
            RETURNING id
        `, uuid.New(), c.Name, c.Description).Scan(&categoryID)
		if err != nil {
			return fmt.Errorf("upsert category: %w", err)
		}

		for i, sq := range c.Questions {
			q, err := sq.Question()
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping invalid question %d in %q: %v\n", i, c.Name, err)
				n.errs++
				continue
			}
			options, err := json.Marshal(q.Options)
			if err != nil {
				return fmt.Errorf("encode options: %w", err)
			}
			var timer *int
			if q.TimerSeconds > 0 {
				timer = &q.TimerSeconds
			}

			cmdTag, err := tx.Exec(ctx, `
                INSERT INTO trivia_questions (
                  id, category_id, text, options, correct_index, timer_seconds, position
                )
                SELECT $1, $2, $3, $4::jsonb, $5, $6,
                       COALESCE((SELECT MAX(position) + 1 FROM trivia_questions WHERE category_id = $2), 0)
                WHERE NOT EXISTS (
                  SELECT 1 FROM trivia_questions WHERE category_id = $2 AND text = $3
                )
            `, uuid.New(), categoryID, q.Text, string(options), q.CorrectIndex, timer)
			if err != nil {
				return fmt.Errorf("insert question %d: %w", i, err)
			}
			if cmdTag.RowsAffected() == 1 {
				n.inserted++
			} else {
				n.skipped++
			}
		}
		return nil
	})
	return n, err
}
