package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// #region sink
// Sink persists audit records. Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, rec AuditRecord) error
}
// #endregion sink

// #region sqlite-sink
// SQLiteSink writes records into the audit_log table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink wraps an open database that already carries the audit schema.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

func (s *SQLiteSink) Write(ctx context.Context, rec AuditRecord) error {
	return LogDecision(ctx, s.db, rec)
}
// #endregion sqlite-sink

// #region redis-sink
// streamAdder is the slice of the redis client the sink needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// DefaultStream is the stream key audit records are appended to.
const DefaultStream = "musegate:audit"

// RedisSink appends records to a capped Redis stream so downstream
// consumers can follow decisions live.
type RedisSink struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisSink creates a sink over any client exposing XAdd (*redis.Client does).
// maxLen caps the stream approximately; zero leaves it unbounded.
func NewRedisSink(client streamAdder, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// NewRedisClient opens a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisSink) Write(ctx context.Context, rec AuditRecord) error {
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	output, err := json.Marshal(rec.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":         rec.ID,
			"learner_id": rec.LearnerID,
			"stage":      rec.Stage,
			"outcome":    rec.Outcome,
			"input":      string(input),
			"output":     string(output),
			"created_at": rec.CreatedAt.UTC().Format(TimeLayout),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
// #endregion redis-sink
