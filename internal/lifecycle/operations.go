package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/repository"
	"github.com/qmdoc/doccontrol/internal/workflow"
	"github.com/qmdoc/doccontrol/pkg/logger"
)

// actionCreate labels the audit entry written on import.
const actionCreate = "create"

// Create imports a file as a new DRAFT document at version 1.0 and writes
// its first audit entry. The owner defaults to the actor.
func (s *Service) Create(ctx context.Context, meta repository.NewDocument, src string, actor document.Actor) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "lifecycle.create", trace.WithAttributes(attribute.String("qmdoc.actor", actor.ID)))
	defer span.End()
	log := logger.With("action", actionCreate, "actor", actor.ID)

	if actor.ID == "" || !actor.HasRole(document.SystemAdmin, document.SystemQMB, document.SystemUser) {
		err := document.Deny(document.ErrForbidden, actionCreate, "creating documents requires one of [ADMIN, QMB, USER]")
		log.With("result", document.ResultDenied).Infof("denied: %s", err.Reason)
		s.finish(span, actionCreate, document.ResultDenied, start, err)
		return nil, err
	}
	if strings.TrimSpace(meta.OwnerID) == "" {
		meta.OwnerID = actor.ID
	}
	d, err := s.store.CreateFromFile(ctx, meta, src)
	if err != nil {
		log.With("result", document.ResultFailure).Warnf("%v", err)
		s.finish(span, actionCreate, document.ResultFailure, start, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("qmdoc.document_id", d.ID))

	res := &Result{Document: d, To: d.Status}
	res.Audit, err = s.store.AppendAudit(context.WithoutCancel(ctx), document.AuditEntry{
		DocumentID:        d.ID,
		Action:            actionCreate,
		ToStatus:          d.Status,
		ActorID:           actor.ID,
		Result:            document.ResultSuccess,
		ArtifactReference: d.CurrentArtifact,
		Details:           map[string]string{"type": string(d.Type), "version": d.VersionLabel()},
	})
	if err != nil {
		log.With("doc", d.ID).Errorf("audit entry not written: %v", err)
		res.Warnings = append(res.Warnings, "audit entry could not be written")
	}
	s.finish(span, actionCreate, document.ResultSuccess, start, nil)
	log.With("doc", d.ID, "result", document.ResultSuccess).Infof("created %s %q", d.Type, d.Title)
	return res, nil
}

// AssignRoles replaces the per-document role assignments wholesale.
func (s *Service) AssignRoles(ctx context.Context, id string, actor document.Actor, assignees document.Assignees, reason string) (*Result, error) {
	norm, err := assignees.Normalized()
	if err != nil {
		return nil, err
	}
	return s.attempt(ctx, workflow.ActionAssignRoles, id, actor, reason, "", func(ctx context.Context, st *step) error {
		if err := s.store.SetAssignees(ctx, id, norm); err != nil {
			return err
		}
		for _, r := range document.WorkflowRoles {
			if ids := norm[r]; len(ids) > 0 {
				st.detail(strings.ToLower(string(r)), strings.Join(ids, ","))
			}
		}
		return nil
	})
}

// Metadata is a partial metadata edit; nil fields are kept.
type Metadata struct {
	Title *string        `json:"title,omitempty"`
	Type  *document.Type `json:"type,omitempty"`
}

func (s *Service) EditMetadata(ctx context.Context, id string, actor document.Actor, m Metadata) (*Result, error) {
	if m.Title == nil && m.Type == nil {
		return nil, fmt.Errorf("%w: nothing to change", document.ErrInvalidInput)
	}
	return s.attempt(ctx, workflow.ActionEditMetadata, id, actor, "", "", func(ctx context.Context, st *step) error {
		updated, err := s.store.UpdateMetadata(ctx, id, repository.MetadataUpdate{Title: m.Title, Type: m.Type, ActorID: actor.ID})
		if err != nil {
			return err
		}
		if m.Title != nil {
			st.detail("title", updated.Title)
		}
		if m.Type != nil {
			st.detail("type", string(updated.Type))
		}
		st.updated = updated
		return nil
	})
}

// CheckIn stores a new working artifact. The revision counter is bumped
// while a workflow is running.
func (s *Service) CheckIn(ctx context.Context, id string, actor document.Actor, src, filename string) (*Result, error) {
	return s.attempt(ctx, workflow.ActionCheckIn, id, actor, "", "", func(ctx context.Context, st *step) error {
		updated, err := s.store.CheckIn(ctx, id, src, filename, actor.ID, st.doc.IsInActiveWorkflow())
		if err != nil {
			return err
		}
		st.updated = updated
		st.artifact = updated.CurrentArtifact
		st.detail("revision", strconv.Itoa(updated.Revision))
		return nil
	})
}

// Comment appends a note to the document.
func (s *Service) Comment(ctx context.Context, id string, actor document.Actor, body string) (*document.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: empty comment", document.ErrInvalidInput)
	}
	var c *document.Comment
	_, err := s.attempt(ctx, workflow.ActionComment, id, actor, "", "", func(ctx context.Context, st *step) error {
		var err error
		c, err = s.store.AddComment(ctx, id, actor.ID, body)
		if err != nil {
			return err
		}
		st.detail("comment_id", strconv.FormatInt(c.ID, 10))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// PrintCopy is an issued controlled copy.
type PrintCopy struct {
	Path      string               `json:"path"`
	Watermark string               `json:"watermark"`
	Count     int                  `json:"count"`
	Audit     *document.AuditEntry `json:"audit,omitempty"`
}

// WatermarkText is the stamp applied to controlled copies.
func WatermarkText(d *document.Document, actorID string, now time.Time) string {
	return fmt.Sprintf("CONTROLLED COPY %s v%s %s %s", d.ID, d.VersionLabel(), actorID, now.Format("2006-01-02"))
}

// Print issues a watermarked controlled copy and counts it per actor.
// Without a watermarker the current artifact itself is returned.
func (s *Service) Print(ctx context.Context, id string, actor document.Actor) (*PrintCopy, error) {
	out := &PrintCopy{}
	res, err := s.attempt(ctx, workflow.ActionPrint, id, actor, "", "", func(ctx context.Context, st *step) error {
		if err := s.store.Verify(st.doc); err != nil {
			return err
		}
		out.Watermark = WatermarkText(st.doc, actor.ID, s.now())
		out.Path = st.doc.CurrentArtifact
		if s.watermarker != nil {
			p, err := s.watermarker.Watermark(ctx, st.doc.CurrentArtifact, out.Watermark)
			if err != nil {
				return classify(err, document.ErrArtifactGeneration, "watermark "+id)
			}
			out.Path = p
		}
		n, err := s.store.RecordPrint(ctx, id, actor.ID)
		if err != nil {
			return err
		}
		out.Count = n
		st.artifact = out.Path
		st.detail("copy", strconv.Itoa(n))
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Audit = res.Audit
	return out, nil
}
