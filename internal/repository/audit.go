package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/qmdoc/doccontrol/internal/document"
)

// AppendAudit stores one audit entry. Entries are append-only; the schema
// rejects updates and deletes.
func (s *Store) AppendAudit(ctx context.Context, e document.AuditEntry) (*document.AuditEntry, error) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}
	if e.Result == "" {
		e.Result = document.ResultSuccess
	}
	var details sql.NullString
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("encode audit details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO audit_log
		(event_id, document_id, action, from_status, to_status, actor_id, reason,
		 action_result, artifact_reference, occurred_at, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.DocumentID, e.Action, string(e.FromStatus), string(e.ToStatus), e.ActorID, e.Reason,
		e.Result, e.ArtifactReference, toUnix(e.OccurredAt), details)
	if err != nil {
		return nil, fmt.Errorf("append audit entry for %s: %w", e.DocumentID, err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return &e, nil
}

// AuditTrail returns the entries of one document in insertion order. An
// empty id returns the whole log.
func (s *Store) AuditTrail(ctx context.Context, id string) ([]document.AuditEntry, error) {
	query := `SELECT id, event_id, document_id, action, from_status, to_status, actor_id, reason,
		action_result, artifact_reference, occurred_at, details FROM audit_log`
	var args []any
	if id != "" {
		query += ` WHERE document_id = ?`
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}
	defer rows.Close()

	out := []document.AuditEntry{}
	for rows.Next() {
		var (
			e          document.AuditEntry
			from, to   string
			occurredAt int64
			details    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.DocumentID, &e.Action, &from, &to, &e.ActorID, &e.Reason,
			&e.Result, &e.ArtifactReference, &occurredAt, &details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.FromStatus = document.Status(from)
		e.ToStatus = document.Status(to)
		e.OccurredAt = fromUnix(occurredAt)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %s: %w", e.EventID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
