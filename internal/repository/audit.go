package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/rs/zerolog"
)

// AuditRepo persists audit records to audit_log. It is an audit.Sink.
type AuditRepo struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewAuditRepo(pool *pgxpool.Pool, log zerolog.Logger) *AuditRepo {
	return &AuditRepo{pool: pool, log: log}
}

// Emit stores rec. Failures are logged, never returned.
func (r *AuditRepo) Emit(ctx context.Context, rec audit.Record) {
	if err := r.Insert(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Error().Err(err).Str("kind", string(rec.Kind)).Str("id", rec.ID.String()).Msg("persist audit record")
	}
}

func (r *AuditRepo) Insert(ctx context.Context, rec audit.Record) error {
	before, err := marshalNullable(rec.Before)
	if err != nil {
		return fmt.Errorf("encode before: %w", err)
	}
	after, err := marshalNullable(rec.After)
	if err != nil {
		return fmt.Errorf("encode after: %w", err)
	}
	fields := rec.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_log (id, kind, actor, at, before, after, fields)
		 VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID.String(), string(rec.Kind), rec.Actor.Hex(), rec.At, before, after, string(fieldsJSON),
	)
	return err
}

// Recent returns the newest records first. An empty kind matches all.
func (r *AuditRepo) Recent(ctx context.Context, limit int, kind audit.Kind) ([]audit.Record, error) {
	query := `SELECT id::text, kind, actor, at, before::text, after::text, fields::text FROM audit_log`
	args := []any{}
	if kind != "" {
		args = append(args, string(kind))
		query += " WHERE kind = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAudit(rows)
}

func marshalNullable(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func scanAudit(row scannable) (*audit.Record, error) {
	var (
		rec                   audit.Record
		id, kind, actor       string
		before, after, fields *string
	)
	if err := row.Scan(&id, &kind, &actor, &rec.At, &before, &after, &fields); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("audit id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Kind = audit.Kind(kind)
	rec.Actor = common.HexToAddress(actor)
	if before != nil {
		rec.Before = json.RawMessage(*before)
	}
	if after != nil {
		rec.After = json.RawMessage(*after)
	}
	if fields != nil {
		if err := json.Unmarshal([]byte(*fields), &rec.Fields); err != nil {
			return nil, fmt.Errorf("audit fields: %w", err)
		}
	}
	return &rec, nil
}

func collectAudit(rows rowsIter) ([]audit.Record, error) {
	var out []audit.Record
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
