// Backfill model answers for stored questions that do not have one yet.
//
// Usage:
//
//	go run ./scripts/backfill-answers --dry-run                 # count unanswered questions
//	go run ./scripts/backfill-answers                           # answer with the default model
//	go run ./scripts/backfill-answers --paper 01J... --model sonnet
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/apresai/paperq/internal/answer"
	"github.com/apresai/paperq/internal/observability"
	"github.com/apresai/paperq/internal/question"
	"github.com/apresai/paperq/internal/store"
)

func main() {
	tableName := flag.String("table", "paperq-prod", "DynamoDB table name")
	region := flag.String("region", "us-east-1", "AWS region")
	model := flag.String("model", "haiku", "Answer model: "+strings.Join(answer.Models(), ", "))
	concurrency := flag.Int("concurrency", 4, "Answer requests in flight")
	paperID := flag.String("paper", "", "Only backfill this paper")
	limit := flag.Int("limit", 500, "Maximum questions to answer")
	dryRun := flag.Bool("dry-run", false, "Preview without generating answers")
	flag.Parse()

	ctx := context.Background()
	cfg, err := observability.LoadAWSConfig(ctx, *region)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	ds := store.NewDynamoStore(dynamodb.NewFromConfig(cfg), *tableName)

	fmt.Printf("Table: %s | Model: %s | Dry run: %v\n", *tableName, *model, *dryRun)

	qs, err := ds.ListQuestions(ctx, store.Filter{PaperID: *paperID, Unanswered: true, Limit: *limit})
	if err != nil {
		log.Fatalf("list questions: %v", err)
	}
	fmt.Printf("Unanswered: %d\n", len(qs))
	if *dryRun || len(qs) == 0 {
		return
	}

	gen, err := answer.NewGenerator(ctx, *model)
	if err != nil {
		log.Fatalf("answer model: %v", err)
	}

	records := make([]question.Record, len(qs))
	for i, q := range qs {
		records[i] = q.Record
	}
	answers := answer.AnswerAll(ctx, gen, records, *concurrency, func(done, total int) {
		if done%25 == 0 || done == total {
			fmt.Printf("  answered %d/%d\n", done, total)
		}
	})

	var updated, failed int
	for i, a := range answers {
		q := qs[i]
		if a.Err != nil {
			fmt.Printf("  FAIL %s %s: %v\n", q.PaperID, q.Record.ID(), a.Err)
			failed++
			continue
		}
		if err := ds.SetAnswer(ctx, q.PaperID, q.Record.Group, q.Record.Number, a.Text); err != nil {
			fmt.Printf("  FAIL %s %s: %v\n", q.PaperID, q.Record.ID(), err)
			failed++
			continue
		}
		updated++
	}

	fmt.Printf("\nDone. Updated: %d | Failed: %d\n", updated, failed)
}
