// Copy questions from the DynamoDB table into SQLite or Postgres.
//
// Usage:
//
//	go run ./scripts/export-sql --dry-run                               # count papers and questions
//	go run ./scripts/export-sql --driver sqlite --dsn file:papers.db    # export to SQLite
//	go run ./scripts/export-sql --driver postgres --dsn postgres://...  # export to Postgres
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/apresai/paperq/internal/observability"
	"github.com/apresai/paperq/internal/question"
	"github.com/apresai/paperq/internal/store"
)

type paper struct {
	first   store.Question
	records []question.Record
	answers map[string]string
}

func main() {
	tableName := flag.String("table", "paperq-prod", "DynamoDB table name")
	region := flag.String("region", "us-east-1", "AWS region")
	driver := flag.String("driver", "sqlite", "Target driver: sqlite or postgres")
	dsn := flag.String("dsn", "", "Target DSN (driver default when empty)")
	limit := flag.Int("limit", 100000, "Maximum questions to read")
	dryRun := flag.Bool("dry-run", false, "Preview without writing")
	flag.Parse()

	ctx := context.Background()
	cfg, err := observability.LoadAWSConfig(ctx, *region)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	src := store.NewDynamoStore(dynamodb.NewFromConfig(cfg), *tableName)

	qs, err := src.ListQuestions(ctx, store.Filter{Limit: *limit})
	if err != nil {
		log.Fatalf("list questions: %v", err)
	}

	// Group by paper, keeping scan order
	papers := map[string]*paper{}
	var order []string
	for _, q := range qs {
		p, ok := papers[q.PaperID]
		if !ok {
			p = &paper{first: q, answers: map[string]string{}}
			papers[q.PaperID] = p
			order = append(order, q.PaperID)
		}
		p.records = append(p.records, q.Record)
		if q.Answer != "" {
			p.answers[q.Record.ID()] = q.Answer
		}
	}
	fmt.Printf("Table: %s | Papers: %d | Questions: %d | Dry run: %v\n", *tableName, len(order), len(qs), *dryRun)
	if *dryRun {
		return
	}

	db, err := store.OpenSQL(ctx, store.Driver(*driver), *dsn)
	if err != nil {
		log.Fatalf("open %s: %v", *driver, err)
	}
	defer db.Close()
	dst := store.NewSQLStore(db)

	var copied, skipped int
	for _, id := range order {
		p := papers[id]
		if exists, err := dst.PaperExists(ctx, p.first.Paper); err != nil {
			log.Fatalf("check %s: %v", id, err)
		} else if exists {
			fmt.Printf("  SKIP %s (%s already present)\n", id, p.first.Paper.Key())
			skipped++
			continue
		}
		if err := dst.SaveQuestions(ctx, id, p.first.Paper, p.records); err != nil {
			log.Fatalf("save %s: %v", id, err)
		}
		for _, r := range p.records {
			if a, ok := p.answers[r.ID()]; ok {
				if err := dst.SetAnswer(ctx, id, r.Group, r.Number, a); err != nil {
					log.Fatalf("answer %s %s: %v", id, r.ID(), err)
				}
			}
		}
		copied++
	}

	fmt.Printf("\nDone. Copied: %d | Skipped: %d\n", copied, skipped)
}
