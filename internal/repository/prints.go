package repository

import (
	"context"
	"fmt"

	"github.com/qmdoc/doccontrol/internal/document"
)

// RecordPrint counts one controlled copy and returns the new per-actor total.
func (s *Store) RecordPrint(ctx context.Context, id, actorID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `INSERT INTO document_prints (document_id, actor_id, count, last_printed_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (document_id, actor_id) DO UPDATE SET count = count + 1, last_printed_at = excluded.last_printed_at
		RETURNING count`, id, actorID, toUnix(s.now())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("record print of %s: %w", id, err)
	}
	return count, nil
}

func (s *Store) Prints(ctx context.Context, id string) ([]document.PrintRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document_id, actor_id, count, last_printed_at
		FROM document_prints WHERE document_id = ? ORDER BY actor_id`, id)
	if err != nil {
		return nil, fmt.Errorf("list prints of %s: %w", id, err)
	}
	defer rows.Close()

	out := []document.PrintRecord{}
	for rows.Next() {
		var (
			p    document.PrintRecord
			last int64
		)
		if err := rows.Scan(&p.DocumentID, &p.ActorID, &p.Count, &last); err != nil {
			return nil, fmt.Errorf("scan print record: %w", err)
		}
		p.LastPrintedAt = fromUnix(last)
		out = append(out, p)
	}
	return out, rows.Err()
}
