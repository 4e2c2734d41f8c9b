package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/pkg/logger"
)

const documentColumns = `id, title, doc_type, status, version_major, version_minor, revision,
	current_artifact_path, editable_artifact_path, signing_artifact_path, owner_id,
	updated_by, status_reason, workflow_active, workflow_started_by, review_cycle,
	created_at, updated_at, next_review_at`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanDocument(r rowScanner) (*document.Document, error) {
	var (
		d                          document.Document
		docType, status            string
		current, editable, signing string
		active                     int
		createdAt, updatedAt       int64
		nextReview                 sql.NullInt64
	)
	err := r.Scan(&d.ID, &d.Title, &docType, &status, &d.Version.Major, &d.Version.Minor, &d.Revision,
		&current, &editable, &signing, &d.OwnerID,
		&d.UpdatedBy, &d.StatusReason, &active, &d.Workflow.StartedBy, &d.Workflow.Cycle,
		&createdAt, &updatedAt, &nextReview)
	if err != nil {
		return nil, err
	}
	d.Type = document.Type(docType)
	d.Status = document.Status(status)
	d.CurrentArtifact = s.layout.abs(current)
	d.EditableArtifact = s.layout.abs(editable)
	d.SigningArtifact = s.layout.abs(signing)
	d.Workflow.Active = active != 0
	d.CreatedAt = fromUnix(createdAt)
	d.UpdatedAt = fromUnix(updatedAt)
	if nextReview.Valid {
		t := fromUnix(nextReview.Int64)
		d.NextReviewAt = &t
	}
	return &d, nil
}

func (s *Store) get(ctx context.Context, q queryer, id string) (*document.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := s.scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	return d, nil
}

// Get loads a document by id.
func (s *Store) Get(ctx context.Context, id string) (*document.Document, error) {
	return s.get(ctx, s.db, id)
}

// Verify checks that the stored artifact pointer still references a file.
func (s *Store) Verify(d *document.Document) error {
	if d.CurrentArtifact == "" {
		return fmt.Errorf("%w: %s has no current artifact", document.ErrStorageConsistency, d.ID)
	}
	if !fileExists(d.CurrentArtifact) {
		return fmt.Errorf("%w: %s current artifact %s is missing", document.ErrStorageConsistency, d.ID, d.CurrentArtifact)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, q queryer, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check document %s: %w", id, err)
	}
	return true, nil
}

// NewDocument is the metadata accompanying an imported file. Empty fields
// are derived from Filename by the IDPolicy.
type NewDocument struct {
	ID       string
	Title    string
	Type     document.Type
	OwnerID  string
	Filename string
}

// CreateFromFile copies src into a fresh document directory and inserts the
// DRAFT v1.0 row. The copy is staged first and moved into place as the last
// step before commit, so a failed import leaves neither a row nor a
// directory behind.
func (s *Store) CreateFromFile(ctx context.Context, meta NewDocument, src string) (*document.Document, error) {
	st, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("%w: source file: %v", document.ErrInvalidInput, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: source %s is a directory", document.ErrInvalidInput, src)
	}

	name := filepath.Base(meta.Filename)
	if strings.TrimSpace(meta.Filename) == "" {
		name = filepath.Base(src)
	}
	id := strings.TrimSpace(meta.ID)
	title := strings.TrimSpace(meta.Title)
	typ := meta.Type
	if derived, ok := s.ids.Derive(name); ok {
		if id == "" {
			id = derived.Code
		}
		if title == "" {
			title = derived.Title
		}
		if typ == "" {
			typ = derived.Type
		}
	}
	if title == "" {
		title = TitleFromFilename(name)
	}
	if typ == "" {
		typ = document.TypeOther
	}
	if strings.EqualFold(id, archiveDirName) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("%w: reserved document id %q", document.ErrInvalidInput, id)
	}
	now := s.now().UTC()

	staging, err := s.layout.newStagingDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)
	if err := copyFile(src, filepath.Join(staging, activeDirName, name)); err != nil {
		return nil, err
	}

	var (
		created *document.Document
		docDir  string
	)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if id == "" {
			generated, err := s.nextSequenceID(ctx, tx, now)
			if err != nil {
				return err
			}
			id = generated
		}
		taken, err := s.exists(ctx, tx, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: document %s already exists", document.ErrConflict, id)
		}
		d, err := document.New(id, title, typ, meta.OwnerID, now)
		if err != nil {
			return err
		}
		d.UpdatedBy = d.OwnerID
		docDir = s.layout.DocDir(d.ID, false)
		d.CurrentArtifact = filepath.Join(docDir, activeDirName, name)
		// the imported file is what back_to_draft restores, whatever its format
		d.EditableArtifact = d.CurrentArtifact
		if err := s.insertDocument(ctx, tx, d); err != nil {
			return err
		}
		// a directory without a row is debris from an interrupted import
		if err := os.RemoveAll(docDir); err != nil {
			return fmt.Errorf("clear stale directory %s: %w", docDir, err)
		}
		if err := os.Rename(staging, docDir); err != nil {
			return fmt.Errorf("publish staged import: %w", err)
		}
		created = d
		return nil
	})
	if err != nil {
		if created != nil {
			_ = os.RemoveAll(docDir)
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) insertDocument(ctx context.Context, tx *sql.Tx, d *document.Document) error {
	current, err := s.layout.rel(d.CurrentArtifact)
	if err != nil {
		return err
	}
	editable, err := s.layout.rel(d.EditableArtifact)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO documents (
		id, title, doc_type, status, version_major, version_minor, revision,
		current_artifact_path, editable_artifact_path, owner_id, updated_by,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, string(d.Type), string(d.Status), d.Version.Major, d.Version.Minor, d.Revision,
		current, editable, d.OwnerID, d.UpdatedBy,
		toUnix(d.CreatedAt), toUnix(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert document %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) nextSequenceID(ctx context.Context, tx *sql.Tx, now time.Time) (string, error) {
	year := now.Year()
	for {
		var seq int
		err := tx.QueryRowContext(ctx, `INSERT INTO sequences (prefix, year, seq) VALUES (?, ?, 1)
			ON CONFLICT (prefix, year) DO UPDATE SET seq = seq + 1
			RETURNING seq`, s.idPrefix, year).Scan(&seq)
		if err != nil {
			return "", fmt.Errorf("next sequence for %s/%d: %w", s.idPrefix, year, err)
		}
		id := fmt.Sprintf("%s-%d-%04d", s.idPrefix, year, seq)
		taken, err := s.exists(ctx, tx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
}

// StatusChange describes one status commit. Nil fields are left unchanged.
// Artifact paths are absolute paths in the layout the document occupies
// before the change.
type StatusChange struct {
	DocumentID string
	// From guards against a concurrent change: the commit fails with
	// document.ErrConflict unless the stored status still equals From.
	From    document.Status
	To      document.Status
	ActorID string
	Reason  string

	Version          *document.Version
	Revision         *int
	CurrentArtifact  *string
	EditableArtifact *string
	SigningArtifact  *string
	Workflow         *document.Workflow
	NextReviewAt     *time.Time
}

// SetStatus writes the new status. Entering ARCHIVED or OBSOLETE moves the
// whole document directory into the archive root (and leaving them moves it
// back); stored paths are rewritten to match. The move is the last step
// before commit; if it fails the status write is rolled back, and if the
// commit fails the move is undone.
func (s *Store) SetStatus(ctx context.Context, ch StatusChange) (*document.Document, error) {
	if !ch.To.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", document.ErrInvalidInput, ch.To)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	d, err := s.get(ctx, tx, ch.DocumentID)
	if err != nil {
		return nil, err
	}
	if d.Status != ch.From {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", document.ErrConflict, d.ID, d.Status, ch.From)
	}

	fromRetired, toRetired := d.Status.IsRetired(), ch.To.IsRetired()
	moving := fromRetired != toRetired

	if ch.Version != nil {
		if err := ch.Version.Validate(); err != nil {
			return nil, err
		}
		d.Version = *ch.Version
	}
	if ch.Revision != nil {
		d.Revision = *ch.Revision
	}
	if ch.CurrentArtifact != nil {
		d.CurrentArtifact = *ch.CurrentArtifact
	}
	if ch.EditableArtifact != nil {
		d.EditableArtifact = *ch.EditableArtifact
	}
	if ch.SigningArtifact != nil {
		d.SigningArtifact = *ch.SigningArtifact
	}
	if ch.Workflow != nil {
		d.Workflow = *ch.Workflow
	}
	if ch.NextReviewAt != nil {
		t := *ch.NextReviewAt
		d.NextReviewAt = &t
	}

	paths := make([]string, 3)
	for i, p := range []string{d.CurrentArtifact, d.EditableArtifact, d.SigningArtifact} {
		rel, err := s.layout.rel(p)
		if err != nil {
			return nil, err
		}
		if moving {
			rel = retarget(rel, d.ID, toRetired)
		}
		paths[i] = rel
	}

	active := 0
	if d.Workflow.Active {
		active = 1
	}
	_, err = tx.ExecContext(ctx, `UPDATE documents SET
		status = ?, version_major = ?, version_minor = ?, revision = ?,
		current_artifact_path = ?, editable_artifact_path = ?, signing_artifact_path = ?,
		workflow_active = ?, workflow_started_by = ?, review_cycle = ?,
		next_review_at = ?, updated_by = ?, status_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(ch.To), d.Version.Major, d.Version.Minor, d.Revision,
		paths[0], paths[1], paths[2],
		active, d.Workflow.StartedBy, d.Workflow.Cycle,
		nullTime(d.NextReviewAt), ch.ActorID, ch.Reason, toUnix(s.now()),
		d.ID, string(ch.From))
	if err != nil {
		return nil, fmt.Errorf("update status of %s: %w", d.ID, err)
	}

	src, dst := s.layout.DocDir(d.ID, fromRetired), s.layout.DocDir(d.ID, toRetired)
	if moving {
		if err := moveDir(src, dst); err != nil {
			return nil, fmt.Errorf("relocate artifacts of %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		if moving {
			if rerr := moveDir(dst, src); rerr != nil {
				logger.Errorf("repository: commit of %s failed and artifacts could not be moved back from %s: %v", d.ID, dst, rerr)
			}
		}
		return nil, fmt.Errorf("commit status of %s: %w", d.ID, err)
	}
	committed = true
	return s.Get(ctx, d.ID)
}

// Query filters Search. By default retired (ARCHIVED/OBSOLETE) documents are
// excluded; an explicit Status overrides that.
type Query struct {
	Text            string
	Status          document.Status
	Type            document.Type
	IncludeArchived bool
	Limit           int
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search lists document summaries ordered by id.
func (s *Store) Search(ctx context.Context, q Query) ([]document.Summary, error) {
	var (
		conditions []string
		args       []any
	)
	if text := strings.TrimSpace(q.Text); text != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(text)) + "%"
		conditions = append(conditions, `(LOWER(id) LIKE ? ESCAPE '\' OR LOWER(title) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	switch {
	case q.Status != "":
		conditions = append(conditions, "status = ?")
		args = append(args, string(q.Status))
	case !q.IncludeArchived:
		conditions = append(conditions, "status NOT IN (?, ?)")
		args = append(args, string(document.StatusArchived), string(document.StatusObsolete))
	}
	if q.Type != "" {
		conditions = append(conditions, "doc_type = ?")
		args = append(args, string(q.Type))
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	out := []document.Summary{}
	for rows.Next() {
		d, err := s.scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, document.Summarize(d))
	}
	return out, rows.Err()
}

// MetadataUpdate carries the editable descriptive fields.
type MetadataUpdate struct {
	Title   *string
	Type    *document.Type
	ActorID string
}

// UpdateMetadata changes title and/or type.
func (s *Store) UpdateMetadata(ctx context.Context, id string, u MetadataUpdate) (*document.Document, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		d, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if u.Title != nil {
			d.Title = strings.TrimSpace(*u.Title)
		}
		if u.Type != nil {
			d.Type = *u.Type
		}
		if err := d.Validate(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE documents SET title = ?, doc_type = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
			d.Title, string(d.Type), u.ActorID, toUnix(s.now()), id)
		if err != nil {
			return fmt.Errorf("update metadata of %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// CheckIn stores a new working artifact next to the previous ones and makes
// it both the current artifact and the restore point. bumpRevision
// increments the in-review revision counter.
func (s *Store) CheckIn(ctx context.Context, id, src, filename, actorID string, bumpRevision bool) (*document.Document, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = filepath.Base(src)
	}
	dst := uniquePath(s.layout.ActiveDir(d.ID, d.Status.IsRetired()), filepath.Base(filename))
	if err := copyFile(src, dst); err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		rel, err := s.layout.rel(dst)
		if err != nil {
			return err
		}
		bump := 0
		if bumpRevision {
			bump = 1
		}
		res, err := tx.ExecContext(ctx, `UPDATE documents SET current_artifact_path = ?, editable_artifact_path = ?,
			revision = revision + ?, updated_by = ?, updated_at = ? WHERE id = ? AND status = ?`,
			rel, rel, bump, actorID, toUnix(s.now()), d.ID, string(d.Status))
		if err != nil {
			return fmt.Errorf("check in %s: %w", d.ID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("%w: %s changed during check-in", document.ErrConflict, d.ID)
		}
		return nil
	})
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}
	return s.Get(ctx, id)
}
