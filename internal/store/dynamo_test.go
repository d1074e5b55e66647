package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/apresai/paperq/internal/question"
)

// fakeDynamo records calls and serves canned responses.
type fakeDynamo struct {
	DynamoAPI
	batches   [][]types.WriteRequest
	unprocess int
	puts      []*dynamodb.PutItemInput
	putErr    error
	updates   []*dynamodb.UpdateItemInput
	item      map[string]types.AttributeValue
	query     *dynamodb.QueryOutput
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	for table, reqs := range in.RequestItems {
		if f.unprocess > 0 {
			f.unprocess--
			f.batches = append(f.batches, reqs[1:])
			return &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{table: reqs[:1]}}, nil
		}
		f.batches = append(f.batches, reqs)
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.item}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.query == nil {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.query, nil
}

func TestDynamoSaveQuestionsBatches(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "paperq")

	var recs []question.Record
	for i := 1; i <= 30; i++ {
		recs = append(recs, question.New(question.GroupB, i, fmt.Sprintf("Explain topic %d.", i), nil))
	}
	if err := s.SaveQuestions(context.Background(), "p1", testPaper, recs); err != nil {
		t.Fatalf("SaveQuestions() error = %v", err)
	}
	// 30 questions + 1 paper marker = 31 items in batches of 25.
	if len(fake.batches) != 2 || len(fake.batches[0]) != 25 || len(fake.batches[1]) != 6 {
		t.Fatalf("batches = %d", len(fake.batches))
	}

	var item QuestionItem
	if err := attributevalue.UnmarshalMap(fake.batches[0][1].PutRequest.Item, &item); err != nil {
		t.Fatal(err)
	}
	if item.PK != "PAPER#p1" || item.SK != "Q#B#01" || item.GroupName != "Group-B" || item.QuestionType != "Short Answer" {
		t.Errorf("question item = %+v", item)
	}
}

func TestDynamoSaveQuestionsRetriesUnprocessed(t *testing.T) {
	fake := &fakeDynamo{unprocess: 1}
	s := NewDynamoStore(fake, "paperq")
	if err := s.SaveQuestions(context.Background(), "p1", testPaper, testRecords()); err != nil {
		t.Fatalf("SaveQuestions() error = %v", err)
	}
	total := 0
	for _, b := range fake.batches {
		total += len(b)
	}
	if total != 4 {
		t.Errorf("written items = %d, want 4", total)
	}
}

func TestDynamoCreateJobConflict(t *testing.T) {
	fake := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{}}
	s := NewDynamoStore(fake, "paperq")
	err := s.CreateJob(context.Background(), &Job{ID: "j1"})
	if !errors.Is(err, ErrJobExists) {
		t.Errorf("CreateJob() error = %v, want ErrJobExists", err)
	}
}

func TestDynamoGetJob(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "paperq")
	s.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if _, err := s.GetJob(ctx, "j1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob() on empty table error = %v", err)
	}

	if err := s.CreateJob(ctx, &Job{ID: "j1", Source: "s3://bucket/key.pdf", Paper: testPaper}); err != nil {
		t.Fatal(err)
	}
	fake.item = fake.puts[0].Item
	j, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if j.Status != JobQueued || j.Paper.SubjectCode != "CS501" || j.CreatedAt.Hour() != 10 {
		t.Errorf("job = %+v", j)
	}
}

func TestDynamoListJobsCursor(t *testing.T) {
	fake := &fakeDynamo{query: &dynamodb.QueryOutput{
		LastEvaluatedKey: map[string]types.AttributeValue{
			"GSI1SK": &types.AttributeValueMemberS{Value: "2024-03-01T10:00:00Z#j1"},
		},
	}}
	s := NewDynamoStore(fake, "paperq")
	_, next, err := s.ListJobs(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if next != "2024-03-01T10:00:00Z#j1" {
		t.Errorf("next cursor = %q", next)
	}
	if _, _, err := s.ListJobs(context.Background(), 10, "garbage"); err == nil {
		t.Error("ListJobs() with malformed cursor should fail")
	}
}

func TestDynamoCompleteJobSetsPaper(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "paperq")
	if err := s.CompleteJob(context.Background(), "j1", "p1", 7, "Done"); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.updates[0].ExpressionAttributeValues[":pid"]; !ok {
		t.Error("CompleteJob() did not set paperId")
	}
}
