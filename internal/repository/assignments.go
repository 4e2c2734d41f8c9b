package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/qmdoc/doccontrol/internal/document"
)

// GetAssignees returns the workflow role assignments in the order they were
// set.
func (s *Store) GetAssignees(ctx context.Context, id string) (document.Assignees, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, actor_id FROM role_assignments
		WHERE document_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("load assignees of %s: %w", id, err)
	}
	defer rows.Close()

	out := document.Assignees{}
	for rows.Next() {
		var role, actor string
		if err := rows.Scan(&role, &actor); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		r := document.Role(role)
		out[r] = append(out[r], actor)
	}
	return out, rows.Err()
}

// SetAssignees replaces all assignments of a document atomically.
func (s *Store) SetAssignees(ctx context.Context, id string, a document.Assignees) error {
	normalized, err := a.Normalized()
	if err != nil {
		return err
	}
	now := toUnix(s.now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", document.ErrNotFound, id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_assignments WHERE document_id = ?`, id); err != nil {
			return fmt.Errorf("clear assignees of %s: %w", id, err)
		}
		for _, role := range document.WorkflowRoles {
			for _, actor := range normalized[role] {
				if _, err := tx.ExecContext(ctx, `INSERT INTO role_assignments (document_id, role, actor_id, assigned_at)
					VALUES (?, ?, ?, ?)`, id, string(role), actor, now); err != nil {
					return fmt.Errorf("assign %s as %s on %s: %w", actor, role, id, err)
				}
			}
		}
		return nil
	})
}
