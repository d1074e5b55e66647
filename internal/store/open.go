package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Backend bundles the question and job stores chosen by configuration.
// Questions is nil for the "none" backend.
type Backend struct {
	Questions QuestionStore
	Jobs      JobStore
	close     func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the stores for backend. SQL backends keep jobs in memory;
// dynamo is only called for the dynamodb backend.
func Open(ctx context.Context, backend, dsn, table string, dynamo func(context.Context) (DynamoAPI, error)) (*Backend, error) {
	switch backend {
	case BackendNone, "":
		return &Backend{Jobs: NewMemory()}, nil
	case BackendMemory:
		m := NewMemory()
		return &Backend{Questions: m, Jobs: m}, nil
	case BackendSQLite, BackendPostgres:
		db, err := OpenSQL(ctx, Driver(backend), dsn)
		if err != nil {
			return nil, err
		}
		return &Backend{Questions: NewSQLStore(db), Jobs: NewMemory(), close: db.Close}, nil
	case BackendDynamoDB:
		client, err := dynamo(ctx)
		if err != nil {
			return nil, err
		}
		d := NewDynamoStore(client, table)
		return &Backend{Questions: d, Jobs: d}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
