package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/question"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// sqlBatchSize is the number of rows per INSERT statement.
const sqlBatchSize = 50

// OpenSQL opens a database and ensures the schema exists.
func OpenSQL(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:paperq.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/paperq?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  paper_id TEXT NOT NULL,
  semester TEXT NOT NULL DEFAULT '',
  subject_code TEXT NOT NULL DEFAULT '',
  subject_name TEXT NOT NULL DEFAULT '',
  year INTEGER NOT NULL,
  university TEXT NOT NULL DEFAULT '',
  paper_type TEXT NOT NULL DEFAULT 'Regular',
  group_name TEXT NOT NULL,
  question_number INTEGER NOT NULL,
  question_type TEXT NOT NULL,
  question_text TEXT NOT NULL,
  options TEXT NOT NULL DEFAULT '',
  correct_answer TEXT NOT NULL DEFAULT '',
  difficulty_level TEXT NOT NULL DEFAULT 'Medium',
  marks INTEGER NOT NULL DEFAULT 1,
  created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS questions_paper_key ON questions (semester, subject_code, year);
CREATE INDEX IF NOT EXISTS questions_paper_id ON questions (paper_id, group_name, question_number);
`

const questionColumns = "id,paper_id,semester,subject_code,subject_name,year,university,paper_type," +
	"group_name,question_number,question_type,question_text,options,correct_answer,difficulty_level,marks,created_at"

// SQLStore stores questions in Postgres or SQLite.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) SaveQuestions(ctx context.Context, paperID string, paper metadata.Paper, records []question.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for start := 0; start < len(records); start += sqlBatchSize {
		end := min(start+sqlBatchSize, len(records))
		var (
			values []string
			args   []any
		)
		for _, r := range records[start:end] {
			row := r.ToRow()
			values = append(values, placeholders(len(args)+1, 17))
			args = append(args,
				uuid.NewString(), paperID, paper.Semester, paper.SubjectCode, paper.SubjectName, paper.Year,
				paper.University, paper.PaperType, row.Group, row.Number, row.Type, row.Text, row.Options,
				"", DefaultDifficulty, DefaultMarks, now)
		}
		q := "INSERT INTO questions (" + questionColumns + ") VALUES " + strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert batch %d: %w", start/sqlBatchSize+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) PaperExists(ctx context.Context, paper metadata.Paper) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM questions WHERE semester=$1 AND subject_code=$2 AND year=$3 LIMIT 1`,
		paper.Semester, paper.SubjectCode, paper.Year).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check duplicate paper: %w", err)
	}
	return true, nil
}

func (s *SQLStore) ListQuestions(ctx context.Context, f Filter) ([]Question, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PaperID != "" {
		add("paper_id=$%d", f.PaperID)
	}
	if f.Semester != "" {
		add("semester=$%d", f.Semester)
	}
	if f.SubjectCode != "" {
		add("subject_code=$%d", f.SubjectCode)
	}
	if f.Year != 0 {
		add("year=$%d", f.Year)
	}
	if f.Group != "" {
		add("group_name=$%d", f.Group.Label())
	}
	if f.Unanswered {
		where = append(where, "correct_answer=''")
	}

	q := "SELECT " + questionColumns + " FROM questions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, paper_id, group_name, question_number"
	if f.Limit > 0 {
		q += " LIMIT " + strconv.Itoa(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var (
			qu        Question
			row       question.Row
			createdAt int64
		)
		if err := rows.Scan(&qu.ID, &qu.PaperID, &qu.Paper.Semester, &qu.Paper.SubjectCode, &qu.Paper.SubjectName,
			&qu.Paper.Year, &qu.Paper.University, &qu.Paper.PaperType, &row.Group, &row.Number, &row.Type,
			&row.Text, &row.Options, &qu.Answer, &qu.Difficulty, &qu.Marks, &createdAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		rec, err := row.Record()
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", qu.ID, err)
		}
		qu.Record = rec
		qu.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, qu)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetAnswer(ctx context.Context, paperID string, g question.Group, number int, answer string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET correct_answer=$1 WHERE paper_id=$2 AND group_name=$3 AND question_number=$4`,
		answer, paperID, g.Label(), number)
	if err != nil {
		return fmt.Errorf("set answer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("question %s-%d in paper %s: %w", g, number, paperID, ErrNotFound)
	}
	return nil
}

// placeholders renders "($first,...,$first+n-1)".
func placeholders(first, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "$" + strconv.Itoa(first+i)
	}
	return "(" + strings.Join(ph, ",") + ")"
}
