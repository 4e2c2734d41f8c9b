package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmdoc/doccontrol/internal/document"
)

// Attachment is a signed artifact to be filed for one signing step.
type Attachment struct {
	DocumentID string
	SourcePath string
	Step       document.Role
	ActorID    string
	Reason     string
	Cycle      int
	// Release, when set, files the artifact as the released copy of that
	// version under versions/v<major>/ instead of the working area.
	Release *document.Version
}

// AttachSignedArtifact copies the signed file into the document tree and
// records the signature. The returned attachment carries the stored path.
func (s *Store) AttachSignedArtifact(ctx context.Context, a Attachment) (*document.SignatureAttachment, error) {
	if strings.TrimSpace(a.SourcePath) == "" || !fileExists(a.SourcePath) {
		return nil, fmt.Errorf("%w: %q", document.ErrSignatureMissing, a.SourcePath)
	}
	d, err := s.Get(ctx, a.DocumentID)
	if err != nil {
		return nil, err
	}
	retired := d.Status.IsRetired()
	ext := strings.ToLower(filepath.Ext(a.SourcePath))

	var dst string
	if a.Release != nil {
		dst = uniquePath(s.layout.VersionDir(d.ID, retired, a.Release.Major),
			fmt.Sprintf("%s_v%s%s", d.ID, a.Release.Label(), ext))
	} else {
		dst = uniquePath(s.layout.ActiveDir(d.ID, retired),
			fmt.Sprintf("%s_%s_c%d%s", d.ID, strings.ToLower(string(a.Step)), a.Cycle, ext))
	}
	if err := copyFile(a.SourcePath, dst); err != nil {
		return nil, err
	}

	sig := &document.SignatureAttachment{
		DocumentID:   d.ID,
		Step:         string(a.Step),
		ActorID:      a.ActorID,
		SignedAt:     s.now().UTC(),
		ArtifactPath: dst,
		Reason:       a.Reason,
		Cycle:        a.Cycle,
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		rel, err := s.layout.rel(dst)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO signatures
			(document_id, step, actor_id, signed_at, artifact_path, reason, review_cycle)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sig.DocumentID, sig.Step, sig.ActorID, toUnix(sig.SignedAt), rel, sig.Reason, sig.Cycle)
		if err != nil {
			return fmt.Errorf("record signature on %s: %w", d.ID, err)
		}
		sig.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	return sig, nil
}

// Signatures lists every signature of a document in signing order.
func (s *Store) Signatures(ctx context.Context, id string) ([]document.SignatureAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, step, actor_id, signed_at, artifact_path, reason, review_cycle
		FROM signatures WHERE document_id = ? ORDER BY signed_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list signatures of %s: %w", id, err)
	}
	defer rows.Close()

	out := []document.SignatureAttachment{}
	for rows.Next() {
		var (
			sig      document.SignatureAttachment
			signedAt int64
			rel      string
		)
		if err := rows.Scan(&sig.ID, &sig.DocumentID, &sig.Step, &sig.ActorID, &signedAt, &rel, &sig.Reason, &sig.Cycle); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sig.SignedAt = fromUnix(signedAt)
		sig.ArtifactPath = s.layout.abs(rel)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// DiscardSignature removes a signature whose status commit failed, together
// with its filed artifact, so it cannot count as the step's executor.
func (s *Store) DiscardSignature(ctx context.Context, sig *document.SignatureAttachment) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM signatures WHERE id = ? AND document_id = ?`, sig.ID, sig.DocumentID); err != nil {
		return fmt.Errorf("discard signature %d of %s: %w", sig.ID, sig.DocumentID, err)
	}
	if err := os.Remove(sig.ArtifactPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", sig.ArtifactPath, err)
	}
	return nil
}
