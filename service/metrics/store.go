package metrics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrInvalidResource marks a resource name that cannot become a table name.
	ErrInvalidResource = errors.New("invalid resource name")
	// ErrInvalidSample marks a sample without a user.
	ErrInvalidSample = errors.New("invalid metrics sample")
)

var resourcePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,48}$`)

// Sample is one gameplay report. Game clients are loose with number encoding,
// so the fields are decoded weakly.
type Sample struct {
	UserID     string  `json:"userId"`
	Duration   float64 `json:"duration"`
	Score      int64   `json:"score"`
	ErrorCount int64   `json:"errorCount"`
}

func (s Sample) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidSample)
	}
	return nil
}

// Store appends samples. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, resource string, s Sample) error
}

// TableName maps a resource to its metrics table, or ErrInvalidResource.
func TableName(resource string) (string, error) {
	if !resourcePattern.MatchString(resource) {
		return "", fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}
	return "metrics_" + strings.ToLower(resource), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgStore writes to PostgreSQL. The tables are provisioned out of band; only
// the four sample columns are assumed.
type PgStore struct {
	db execer
}

// NewPgStore accepts a *pgxpool.Pool, a *pgx.Conn or a transaction.
func NewPgStore(db execer) *PgStore {
	return &PgStore{db: db}
}

func (p *PgStore) Append(ctx context.Context, resource string, s Sample) error {
	table, err := TableName(resource)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	sql := "INSERT INTO " + pgx.Identifier{table}.Sanitize() +
		" (user_id, duration, score, error_count) VALUES ($1, $2, $3, $4)"
	if _, err := p.db.Exec(ctx, sql, s.UserID, s.Duration, s.Score, s.ErrorCount); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}
