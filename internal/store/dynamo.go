package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/question"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Single-table key layout:
//
//	JOB#<id>    METADATA         job record, GSI1PK=JOBS
//	PAPER#<id>  METADATA         paper record, GSI2PK=PAPERKEY#<sem>#<code>#<year>
//	PAPER#<id>  Q#<group>#<nn>   one question
const (
	skMetadata    = "METADATA"
	gsi1Jobs      = "JOBS"
	dynamoBatch   = 25
	questionLimit = 100
)

func jobPK(id string) string           { return "JOB#" + id }
func paperPK(id string) string         { return "PAPER#" + id }
func paperKey(p metadata.Paper) string { return "PAPERKEY#" + p.Key() }

func questionSK(g question.Group, number int) string {
	return fmt.Sprintf("Q#%s#%02d", g, number)
}

// JobItem is the DynamoDB record for a job.
type JobItem struct {
	PK          string  `dynamodbav:"PK"`
	SK          string  `dynamodbav:"SK"`
	GSI1PK      string  `dynamodbav:"GSI1PK"`
	GSI1SK      string  `dynamodbav:"GSI1SK"`
	JobID       string  `dynamodbav:"jobId"`
	Source      string  `dynamodbav:"sourceUrl,omitempty"`
	Filename    string  `dynamodbav:"filename,omitempty"`
	Status      string  `dynamodbav:"status"`
	Progress    float64 `dynamodbav:"progressPercent,omitempty"`
	Message     string  `dynamodbav:"stageMessage,omitempty"`
	Error       string  `dynamodbav:"errorMessage,omitempty"`
	PaperID     string  `dynamodbav:"paperId,omitempty"`
	Questions   int     `dynamodbav:"questionCount,omitempty"`
	Semester    string  `dynamodbav:"semester,omitempty"`
	SubjectCode string  `dynamodbav:"subjectCode,omitempty"`
	SubjectName string  `dynamodbav:"subjectName,omitempty"`
	Year        int     `dynamodbav:"year,omitempty"`
	University  string  `dynamodbav:"university,omitempty"`
	PaperType   string  `dynamodbav:"paperType,omitempty"`
	CreatedAt   string  `dynamodbav:"createdAt"`
	UpdatedAt   string  `dynamodbav:"updatedAt,omitempty"`
}

func (it JobItem) job() Job {
	created, _ := time.Parse(time.RFC3339, it.CreatedAt)
	updated, _ := time.Parse(time.RFC3339, it.UpdatedAt)
	return Job{
		ID:        it.JobID,
		Source:    it.Source,
		Filename:  it.Filename,
		Status:    JobStatus(it.Status),
		Progress:  it.Progress,
		Message:   it.Message,
		Error:     it.Error,
		PaperID:   it.PaperID,
		Questions: it.Questions,
		Paper: metadata.Paper{
			Semester: it.Semester, SubjectCode: it.SubjectCode, SubjectName: it.SubjectName,
			Year: it.Year, University: it.University, PaperType: it.PaperType,
		},
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

// QuestionItem is the DynamoDB record for one question.
type QuestionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	ID           string `dynamodbav:"id"`
	PaperID      string `dynamodbav:"paperId"`
	Semester     string `dynamodbav:"semester"`
	SubjectCode  string `dynamodbav:"subjectCode"`
	SubjectName  string `dynamodbav:"subjectName,omitempty"`
	Year         int    `dynamodbav:"year"`
	University   string `dynamodbav:"university,omitempty"`
	PaperType    string `dynamodbav:"paperType,omitempty"`
	GroupName    string `dynamodbav:"groupName"`
	Number       int    `dynamodbav:"questionNumber"`
	QuestionType string `dynamodbav:"questionType"`
	Text         string `dynamodbav:"questionText"`
	Options      string `dynamodbav:"options,omitempty"`
	Answer       string `dynamodbav:"correctAnswer,omitempty"`
	Difficulty   string `dynamodbav:"difficultyLevel"`
	Marks        int    `dynamodbav:"marks"`
	CreatedAt    string `dynamodbav:"createdAt"`
}

func newQuestionItem(paperID string, p metadata.Paper, r question.Record, now string) QuestionItem {
	row := r.ToRow()
	return QuestionItem{
		PK:           paperPK(paperID),
		SK:           questionSK(r.Group, r.Number),
		ID:           paperID + "#" + r.ID(),
		PaperID:      paperID,
		Semester:     p.Semester,
		SubjectCode:  p.SubjectCode,
		SubjectName:  p.SubjectName,
		Year:         p.Year,
		University:   p.University,
		PaperType:    p.PaperType,
		GroupName:    row.Group,
		Number:       row.Number,
		QuestionType: row.Type,
		Text:         row.Text,
		Options:      row.Options,
		Difficulty:   DefaultDifficulty,
		Marks:        DefaultMarks,
		CreatedAt:    now,
	}
}

func (it QuestionItem) question() (Question, error) {
	rec, err := question.Row{Group: it.GroupName, Number: it.Number, Type: it.QuestionType, Text: it.Text, Options: it.Options}.Record()
	if err != nil {
		return Question{}, err
	}
	created, _ := time.Parse(time.RFC3339, it.CreatedAt)
	return Question{
		ID:      it.ID,
		PaperID: it.PaperID,
		Paper: metadata.Paper{
			Semester: it.Semester, SubjectCode: it.SubjectCode, SubjectName: it.SubjectName,
			Year: it.Year, University: it.University, PaperType: it.PaperType,
		},
		Record:     rec,
		Answer:     it.Answer,
		Difficulty: it.Difficulty,
		Marks:      it.Marks,
		CreatedAt:  created,
	}, nil
}

// paperItem marks a stored paper so duplicates can be found through GSI2.
type paperItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI2PK    string `dynamodbav:"GSI2PK"`
	GSI2SK    string `dynamodbav:"GSI2SK"`
	PaperID   string `dynamodbav:"paperId"`
	Questions int    `dynamodbav:"questionCount"`
	CreatedAt string `dynamodbav:"createdAt"`
}

// DynamoStore keeps jobs and questions in one DynamoDB table.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

func (s *DynamoStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *DynamoStore) CreateJob(ctx context.Context, job *Job) error {
	now := s.timestamp()
	status := job.Status
	if status == "" {
		status = JobQueued
	}
	item := JobItem{
		PK:          jobPK(job.ID),
		SK:          skMetadata,
		GSI1PK:      gsi1Jobs,
		GSI1SK:      now + "#" + job.ID,
		JobID:       job.ID,
		Source:      job.Source,
		Filename:    job.Filename,
		Status:      string(status),
		Semester:    job.Paper.Semester,
		SubjectCode: job.Paper.SubjectCode,
		SubjectName: job.Paper.SubjectName,
		Year:        job.Paper.Year,
		University:  job.Paper.University,
		PaperType:   job.Paper.PaperType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal job item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("job %s: %w", job.ID, ErrJobExists)
		}
		return fmt.Errorf("put job item: %w", err)
	}
	return nil
}

func (s *DynamoStore) jobKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: jobPK(id)},
		"SK": &types.AttributeValueMemberS{Value: skMetadata},
	}
}

func (s *DynamoStore) UpdateJob(ctx context.Context, id string, status JobStatus, progress float64, message string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.jobKey(id),
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg, updatedAt = :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pct":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", progress)},
			":msg":    &types.AttributeValueMemberS{Value: message},
			":now":    &types.AttributeValueMemberS{Value: s.timestamp()},
		},
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *DynamoStore) CompleteJob(ctx context.Context, id, paperID string, questions int, message string) error {
	updateExpr := "SET #status = :status, progressPercent = :pct, stageMessage = :msg, questionCount = :qc, updatedAt = :now"
	exprValues := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: string(JobCompleted)},
		":pct":    &types.AttributeValueMemberN{Value: "1.00"},
		":msg":    &types.AttributeValueMemberS{Value: message},
		":qc":     &types.AttributeValueMemberN{Value: fmt.Sprint(questions)},
		":now":    &types.AttributeValueMemberS{Value: s.timestamp()},
	}
	if paperID != "" {
		updateExpr += ", paperId = :pid"
		exprValues[":pid"] = &types.AttributeValueMemberS{Value: paperID}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.jobKey(id),
		UpdateExpression: aws.String(updateExpr),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (s *DynamoStore) FailJob(ctx context.Context, id, errMsg string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.jobKey(id),
		UpdateExpression: aws.String("SET #status = :status, errorMessage = :err, stageMessage = :msg, updatedAt = :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(JobFailed)},
			":err":    &types.AttributeValueMemberS{Value: errMsg},
			":msg":    &types.AttributeValueMemberS{Value: "Failed: " + errMsg},
			":now":    &types.AttributeValueMemberS{Value: s.timestamp()},
		},
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

func (s *DynamoStore) GetJob(ctx context.Context, id string) (*Job, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       s.jobKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}

	var item JobItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	job := item.job()
	return &job, nil
}

// ListJobs returns jobs ordered by creation time (newest first) via GSI1.
func (s *DynamoStore) ListJobs(ctx context.Context, limit int, cursor string) ([]Job, string, error) {
	if limit <= 0 {
		limit = 20
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: gsi1Jobs},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		// cursor is the full GSI1SK value ({timestamp}#{id})
		parts := strings.SplitN(cursor, "#", 2)
		if len(parts) != 2 {
			return nil, "", fmt.Errorf("invalid cursor format")
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: jobPK(parts[1])},
			"SK":     &types.AttributeValueMemberS{Value: skMetadata},
			"GSI1PK": &types.AttributeValueMemberS{Value: gsi1Jobs},
			"GSI1SK": &types.AttributeValueMemberS{Value: cursor},
		}
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list jobs: %w", err)
	}

	var items []JobItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal job list: %w", err)
	}
	jobs := make([]Job, len(items))
	for i, it := range items {
		jobs[i] = it.job()
	}

	var nextCursor string
	if result.LastEvaluatedKey != nil {
		if gsi1sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			nextCursor = gsi1sk.Value
		}
	}

	return jobs, nextCursor, nil
}

// SaveQuestions writes the paper marker and its questions in batches of 25.
func (s *DynamoStore) SaveQuestions(ctx context.Context, paperID string, paper metadata.Paper, records []question.Record) error {
	now := s.timestamp()
	marker, err := attributevalue.MarshalMap(paperItem{
		PK:        paperPK(paperID),
		SK:        skMetadata,
		GSI2PK:    paperKey(paper),
		GSI2SK:    now + "#" + paperID,
		PaperID:   paperID,
		Questions: len(records),
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal paper item: %w", err)
	}
	requests := []types.WriteRequest{{PutRequest: &types.PutRequest{Item: marker}}}
	for _, r := range records {
		av, err := attributevalue.MarshalMap(newQuestionItem(paperID, paper, r, now))
		if err != nil {
			return fmt.Errorf("marshal question %s: %w", r.ID(), err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	for start := 0; start < len(requests); start += dynamoBatch {
		end := min(start+dynamoBatch, len(requests))
		pending := map[string][]types.WriteRequest{s.tableName: requests[start:end]}
		for attempt := 0; len(pending[s.tableName]) > 0; attempt++ {
			if attempt == 3 {
				return fmt.Errorf("batch write: %d items unprocessed", len(pending[s.tableName]))
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch write questions: %w", err)
			}
			pending = out.UnprocessedItems
			if len(pending[s.tableName]) > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
				}
			}
		}
	}
	return nil
}

func (s *DynamoStore) PaperExists(ctx context.Context, paper metadata.Paper) (bool, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI2"),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: paperKey(paper)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("check duplicate paper: %w", err)
	}
	return len(result.Items) > 0, nil
}

// ListQuestions queries one paper's partition when PaperID is set and scans
// the table otherwise.
func (s *DynamoStore) ListQuestions(ctx context.Context, f Filter) ([]Question, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = questionLimit
	}

	var out []Question
	var startKey map[string]types.AttributeValue
	for {
		var (
			items   []map[string]types.AttributeValue
			lastKey map[string]types.AttributeValue
		)
		if f.PaperID != "" {
			res, err := s.client.Query(ctx, &dynamodb.QueryInput{
				TableName:              &s.tableName,
				KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :q)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: paperPK(f.PaperID)},
					":q":  &types.AttributeValueMemberS{Value: "Q#"},
				},
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, fmt.Errorf("query questions: %w", err)
			}
			items, lastKey = res.Items, res.LastEvaluatedKey
		} else {
			res, err := s.client.Scan(ctx, &dynamodb.ScanInput{
				TableName:        &s.tableName,
				FilterExpression: aws.String("begins_with(SK, :q)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":q": &types.AttributeValueMemberS{Value: "Q#"},
				},
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, fmt.Errorf("scan questions: %w", err)
			}
			items, lastKey = res.Items, res.LastEvaluatedKey
		}

		var page []QuestionItem
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
		for _, it := range page {
			q, err := it.question()
			if err != nil {
				return nil, fmt.Errorf("question %s: %w", it.ID, err)
			}
			if !f.match(q) {
				continue
			}
			out = append(out, q)
			if len(out) == limit {
				return out, nil
			}
		}
		if lastKey == nil {
			return out, nil
		}
		startKey = lastKey
	}
}

func (s *DynamoStore) SetAnswer(ctx context.Context, paperID string, g question.Group, number int, answer string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: paperPK(paperID)},
			"SK": &types.AttributeValueMemberS{Value: questionSK(g, number)},
		},
		UpdateExpression:    aws.String("SET correctAnswer = :a"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": &types.AttributeValueMemberS{Value: answer},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("question %s-%d in paper %s: %w", g, number, paperID, ErrNotFound)
		}
		return fmt.Errorf("set answer: %w", err)
	}
	return nil
}
