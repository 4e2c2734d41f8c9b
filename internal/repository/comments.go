package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/qmdoc/doccontrol/internal/document"
)

func (s *Store) AddComment(ctx context.Context, id, actorID, body string) (*document.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: empty comment", document.ErrInvalidInput)
	}
	c := &document.Comment{DocumentID: id, ActorID: actorID, Body: body, CreatedAt: s.now().UTC()}
	res, err := s.db.ExecContext(ctx, `INSERT INTO comments (document_id, actor_id, body, created_at) VALUES (?, ?, ?, ?)`,
		id, actorID, body, toUnix(c.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("add comment to %s: %w", id, err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) Comments(ctx context.Context, id string) ([]document.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, actor_id, body, created_at
		FROM comments WHERE document_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list comments of %s: %w", id, err)
	}
	defer rows.Close()

	out := []document.Comment{}
	for rows.Next() {
		var (
			c         document.Comment
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ActorID, &c.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = fromUnix(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
