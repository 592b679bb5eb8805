// Package renewstore persists renewal attempts and the last known state
// of every server. The daemon reads it for its status api, the cli for
// `history list`.
package renewstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uzx-v/renewbot/lib/renewstore/db"
	"github.com/uzx-v/renewbot/lib/timezone"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/renewstore")

type Attempt struct {
	Id       string
	Provider string
	Target   string
	Status   string
	Detail   string
	// ExpiresAt is the expiration read off the panel, zero when the page
	// never revealed one.
	ExpiresAt   time.Time
	DaysLeft    int64
	AttemptedAt time.Time
}

type ProviderState struct {
	Provider   string
	Target     string
	ExpiresAt  time.Time
	LastStatus string
	UpdatedAt  time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Open opens a sqlite database at path and applies the schema. Use
// ":memory:" for throwaway stores.
func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	_, err = database.Exec(db.Schema)
	if err != nil {
		database.Close()
		return Store{}, err
	}
	return Store{db: database}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func nullableUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

// RecordAttempt appends one attempt and refreshes the provider's last
// known state in the same transaction.
func (s Store) RecordAttempt(ctx context.Context, attempt Attempt) (Attempt, error) {
	ctx, span := tracer.Start(ctx, "RecordAttempt")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider", attempt.Provider),
		attribute.String("status", attempt.Status),
	)

	if attempt.Id == "" {
		attempt.Id = uuid.NewString()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = timezone.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Attempt{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO renewal_attempts
			(id, provider, target, status, detail, expires_at, days_left, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.Id, attempt.Provider, attempt.Target, attempt.Status, attempt.Detail,
		nullableUnix(attempt.ExpiresAt), attempt.DaysLeft, attempt.AttemptedAt.Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Attempt{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO provider_state (provider, target, expires_at, last_status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider, target) DO UPDATE SET
			expires_at = COALESCE(excluded.expires_at, provider_state.expires_at),
			last_status = excluded.last_status,
			updated_at = excluded.updated_at`,
		attempt.Provider, attempt.Target, nullableUnix(attempt.ExpiresAt),
		attempt.Status, attempt.AttemptedAt.Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Attempt{}, err
	}

	err = tx.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Attempt{}, err
	}
	return attempt, nil
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	var out []Attempt
	for rows.Next() {
		var a Attempt
		var expiresAt sql.NullInt64
		var daysLeft sql.NullInt64
		var attemptedAt int64
		err := rows.Scan(
			&a.Id, &a.Provider, &a.Target, &a.Status, &a.Detail,
			&expiresAt, &daysLeft, &attemptedAt,
		)
		if err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			a.ExpiresAt = time.Unix(expiresAt.Int64, 0).In(timezone.Location)
		}
		if daysLeft.Valid {
			a.DaysLeft = daysLeft.Int64
		}
		a.AttemptedAt = time.Unix(attemptedAt, 0).In(timezone.Location)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAttempts returns the most recent attempts, newest first. An empty
// provider matches everything.
func (s Store) ListAttempts(ctx context.Context, provider string, limit int) ([]Attempt, error) {
	ctx, span := tracer.Start(ctx, "ListAttempts")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, provider, target, status, detail, expires_at, days_left, attempted_at
		FROM renewal_attempts`
	args := []any{}
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY attempted_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// LastAttempt returns the most recent attempt for one target, or false
// when the target was never attempted.
func (s Store) LastAttempt(ctx context.Context, provider, target string) (Attempt, bool, error) {
	ctx, span := tracer.Start(ctx, "LastAttempt")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, target, status, detail, expires_at, days_left, attempted_at
		FROM renewal_attempts
		WHERE provider = ? AND target = ?
		ORDER BY attempted_at DESC LIMIT 1`,
		provider, target,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Attempt{}, false, err
	}
	defer rows.Close()

	attempts, err := scanAttempts(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Attempt{}, false, err
	}
	if len(attempts) == 0 {
		return Attempt{}, false, nil
	}
	return attempts[0], true, nil
}

// ProviderStates returns the last known state of every tracked server.
func (s Store) ProviderStates(ctx context.Context) ([]ProviderState, error) {
	ctx, span := tracer.Start(ctx, "ProviderStates")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, target, expires_at, last_status, updated_at
		FROM provider_state
		ORDER BY provider, target`,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []ProviderState
	for rows.Next() {
		var state ProviderState
		var expiresAt sql.NullInt64
		var updatedAt int64
		err := rows.Scan(&state.Provider, &state.Target, &expiresAt, &state.LastStatus, &updatedAt)
		if err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			state.ExpiresAt = time.Unix(expiresAt.Int64, 0).In(timezone.Location)
		}
		state.UpdatedAt = time.Unix(updatedAt, 0).In(timezone.Location)
		out = append(out, state)
	}
	return out, rows.Err()
}
