package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/repository"
	"github.com/qmdoc/doccontrol/internal/workflow"
	"github.com/qmdoc/doccontrol/pkg/logger"
	"github.com/qmdoc/doccontrol/pkg/metrics"
)

// Execute runs a status-changing action. Denials come back as
// *document.Denial; both denials and failures are recorded in the audit
// trail.
func (s *Service) Execute(ctx context.Context, req Request) (*Result, error) {
	var apply applyFunc
	switch req.Action {
	case workflow.ActionSubmitReview, workflow.ActionRequestApproval, workflow.ActionPublish:
		apply = func(ctx context.Context, st *step) error { return s.forward(ctx, st, req.SignedArtifactPath) }
	case workflow.ActionBackToDraft:
		apply = s.backToDraft
	case workflow.ActionAbortWorkflow:
		apply = s.abortWorkflow
	case workflow.ActionStartWorkflow:
		apply = s.startWorkflow
	case workflow.ActionArchive:
		apply = s.archive
	case workflow.ActionCreateRevision:
		apply = s.createRevision
	case workflow.ActionExtendReview:
		apply = s.extendReview
	default:
		return nil, fmt.Errorf("%w: %q is not a transition action", document.ErrInvalidInput, req.Action)
	}
	return s.attempt(ctx, req.Action, req.DocumentID, req.Actor, req.Reason, req.Target, apply)
}

func (s *Service) SubmitReview(ctx context.Context, id string, actor document.Actor, signedPath, reason string) (*Result, error) {
	return s.Execute(ctx, Request{Action: workflow.ActionSubmitReview, DocumentID: id, Actor: actor, SignedArtifactPath: signedPath, Reason: reason})
}

func (s *Service) RequestApproval(ctx context.Context, id string, actor document.Actor, signedPath, reason string) (*Result, error) {
	return s.Execute(ctx, Request{Action: workflow.ActionRequestApproval, DocumentID: id, Actor: actor, SignedArtifactPath: signedPath, Reason: reason})
}

func (s *Service) Publish(ctx context.Context, id string, actor document.Actor, signedPath, reason string) (*Result, error) {
	return s.Execute(ctx, Request{Action: workflow.ActionPublish, DocumentID: id, Actor: actor, SignedArtifactPath: signedPath, Reason: reason})
}

func (s *Service) BackToDraft(ctx context.Context, id string, actor document.Actor, reason string) (*Result, error) {
	return s.Execute(ctx, Request{Action: workflow.ActionBackToDraft, DocumentID: id, Actor: actor, Reason: reason})
}

// Archive retires a published document. target is ARCHIVED, OBSOLETE or ""
// for the policy's default.
func (s *Service) Archive(ctx context.Context, id string, actor document.Actor, target document.Status, reason string) (*Result, error) {
	return s.Execute(ctx, Request{Action: workflow.ActionArchive, DocumentID: id, Actor: actor, Target: target, Reason: reason})
}

// forward renders the current content, obtains a signed artifact, files it
// and only then commits the new status.
func (s *Service) forward(ctx context.Context, st *step, signedPath string) error {
	d := st.doc
	wf := d.Workflow
	if st.action == workflow.ActionSubmitReview && !wf.Active {
		wf = document.Workflow{Active: true, StartedBy: st.actor.ID, Cycle: wf.Cycle + 1}
	}
	if wf.Cycle == 0 {
		wf.Cycle = 1
	}

	if err := s.store.Verify(d); err != nil {
		return err
	}
	portable := d.CurrentArtifact
	if st.rule.Requires.Render {
		out, err := s.renderer.RenderToPortable(ctx, d.CurrentArtifact)
		if err != nil {
			return classify(err, document.ErrArtifactGeneration, "render "+d.ID)
		}
		if out != d.CurrentArtifact {
			defer os.Remove(out)
		}
		portable = out
	}

	step := st.action.SigningStep()
	if step == "" {
		step = d.Status.Phase()
	}
	needSignature := st.rule.Requires.Signature && s.perms.Types().Get(d.Type).SignatureRequired(step)

	if signedPath == "" && s.signer != nil && needSignature {
		out, err := s.signer.Sign(ctx, portable, st.actor, st.reason)
		if err != nil {
			return classify(err, document.ErrSignatureMissing, "sign "+d.ID)
		}
		if out != portable && out != d.CurrentArtifact {
			defer os.Remove(out)
		}
		signedPath = out
	}
	if signedPath == "" {
		if needSignature {
			return fmt.Errorf("%w: %s of %s needs a signed artifact", document.ErrSignatureMissing, st.action, d.ID)
		}
		signedPath = portable
	}

	att := repository.Attachment{
		DocumentID: d.ID,
		SourcePath: signedPath,
		Step:       step,
		ActorID:    st.actor.ID,
		Reason:     st.reason,
		Cycle:      wf.Cycle,
	}
	change := repository.StatusChange{
		DocumentID: d.ID,
		From:       d.Status,
		To:         st.rule.To,
		ActorID:    st.actor.ID,
		Reason:     st.reason,
		Workflow:   &wf,
	}
	publishing := st.rule.To == document.StatusPublished
	if publishing {
		next := d.Version.NextMajor()
		zero := 0
		due := s.now().AddDate(0, s.perms.Types().Get(d.Type).ReviewMonths, 0)
		att.Release = &next
		wf.Active = false
		change.Version = &next
		change.Revision = &zero
		change.NextReviewAt = &due
	}

	sig, err := s.store.AttachSignedArtifact(ctx, att)
	if err != nil {
		return err
	}
	change.CurrentArtifact = &sig.ArtifactPath
	change.SigningArtifact = &sig.ArtifactPath
	updated, err := s.store.SetStatus(ctx, change)
	if err != nil {
		if derr := s.store.DiscardSignature(context.WithoutCancel(ctx), sig); derr != nil {
			logger.With("doc", d.ID, "action", st.action).Errorf("discard signature after failed commit: %v", derr)
		}
		return err
	}

	st.updated = updated
	st.artifact = updated.CurrentArtifact
	st.detail("cycle", strconv.Itoa(wf.Cycle))
	st.detail("version", updated.VersionLabel())
	if publishing && s.replicator != nil {
		st.followUps = append(st.followUps, s.replicate)
	}
	if st.reason != "" {
		st.followUps = append(st.followUps, s.commentReason)
	}
	return nil
}

// replicate uploads the released artifact. Failures never undo the release.
func (s *Service) replicate(ctx context.Context, st *step) {
	d := st.updated
	key, err := s.replicator.Replicate(ctx, d.ID, d.Version.Major, d.CurrentArtifact)
	if err != nil {
		metrics.ReplicationFailures.Inc()
		logger.With("doc", d.ID, "version", d.VersionLabel()).Warnf("replication failed: %v", err)
		st.warn("replication of %s v%s failed: %v", d.ID, d.VersionLabel(), err)
		return
	}
	logger.With("doc", d.ID, "key", key).Debugf("replicated release")
}

func (s *Service) commentReason(ctx context.Context, st *step) {
	if _, err := s.store.AddComment(ctx, st.doc.ID, st.actor.ID, st.reason); err != nil {
		logger.With("doc", st.doc.ID, "action", st.action).Warnf("record reason as comment: %v", err)
		st.warn("reason could not be recorded as a comment")
	}
}

// restoreEditable commits to, making the editable artifact current again and
// dropping the signing artifact and the workflow flag.
func (s *Service) restoreEditable(ctx context.Context, st *step, to document.Status) error {
	d := st.doc
	current := d.CurrentArtifact
	if d.EditableArtifact != "" {
		current = d.EditableArtifact
	}
	candidate := d.Clone()
	candidate.CurrentArtifact = current
	if err := s.store.Verify(candidate); err != nil {
		return err
	}
	none := ""
	wf := document.Workflow{Cycle: d.Workflow.Cycle}
	updated, err := s.store.SetStatus(ctx, repository.StatusChange{
		DocumentID:      d.ID,
		From:            d.Status,
		To:              to,
		ActorID:         st.actor.ID,
		Reason:          st.reason,
		CurrentArtifact: &current,
		SigningArtifact: &none,
		Workflow:        &wf,
	})
	if err != nil {
		return err
	}
	st.updated = updated
	st.artifact = updated.CurrentArtifact
	return nil
}

func (s *Service) backToDraft(ctx context.Context, st *step) error {
	return s.restoreEditable(ctx, st, st.rule.To)
}

func (s *Service) abortWorkflow(ctx context.Context, st *step) error {
	if !st.doc.IsInActiveWorkflow() {
		return document.Deny(document.ErrInvalidTransition, string(st.action), "no workflow is running")
	}
	return s.restoreEditable(ctx, st, st.rule.To)
}

func (s *Service) startWorkflow(ctx context.Context, st *step) error {
	d := st.doc
	if d.Workflow.Active {
		return document.Deny(document.ErrInvalidTransition, string(st.action),
			fmt.Sprintf("workflow already started by %s", d.Workflow.StartedBy))
	}
	wf := document.Workflow{Active: true, StartedBy: st.actor.ID, Cycle: d.Workflow.Cycle + 1}
	updated, err := s.store.SetStatus(ctx, repository.StatusChange{
		DocumentID: d.ID,
		From:       d.Status,
		To:         st.rule.To,
		ActorID:    st.actor.ID,
		Reason:     st.reason,
		Workflow:   &wf,
	})
	if err != nil {
		return err
	}
	st.updated = updated
	st.detail("cycle", strconv.Itoa(wf.Cycle))
	return nil
}

func (s *Service) archive(ctx context.Context, st *step) error {
	d := st.doc
	wf := document.Workflow{Cycle: d.Workflow.Cycle}
	updated, err := s.store.SetStatus(ctx, repository.StatusChange{
		DocumentID: d.ID,
		From:       d.Status,
		To:         st.rule.To,
		ActorID:    st.actor.ID,
		Reason:     st.reason,
		Workflow:   &wf,
	})
	if err != nil {
		return err
	}
	st.updated = updated
	st.artifact = updated.CurrentArtifact
	return nil
}

// createRevision reopens a published document for editing under the next
// minor version.
func (s *Service) createRevision(ctx context.Context, st *step) error {
	d := st.doc
	next := d.Version.NextMinor()
	zero := 0
	current := d.CurrentArtifact
	if d.EditableArtifact != "" {
		current = d.EditableArtifact
	}
	candidate := d.Clone()
	candidate.CurrentArtifact = current
	if err := s.store.Verify(candidate); err != nil {
		return err
	}
	none := ""
	wf := document.Workflow{Cycle: d.Workflow.Cycle}
	updated, err := s.store.SetStatus(ctx, repository.StatusChange{
		DocumentID:      d.ID,
		From:            d.Status,
		To:              st.rule.To,
		ActorID:         st.actor.ID,
		Reason:          st.reason,
		Version:         &next,
		Revision:        &zero,
		CurrentArtifact: &current,
		SigningArtifact: &none,
		Workflow:        &wf,
	})
	if err != nil {
		return err
	}
	st.updated = updated
	st.artifact = updated.CurrentArtifact
	st.detail("version", next.Label())
	return nil
}

// extendReview pushes the review date by one period of the document's type,
// counted from the current due date unless that already lies in the past.
func (s *Service) extendReview(ctx context.Context, st *step) error {
	d := st.doc
	now := s.now()
	base := now
	if d.NextReviewAt != nil && d.NextReviewAt.After(now) {
		base = *d.NextReviewAt
	}
	due := base.AddDate(0, s.perms.Types().Get(d.Type).ReviewMonths, 0)
	updated, err := s.store.SetStatus(ctx, repository.StatusChange{
		DocumentID:   d.ID,
		From:         d.Status,
		To:           st.rule.To,
		ActorID:      st.actor.ID,
		Reason:       st.reason,
		NextReviewAt: &due,
	})
	if err != nil {
		return err
	}
	if d.NextReviewAt != nil {
		st.detail("previous_review_at", d.NextReviewAt.UTC().Format("2006-01-02"))
	}
	st.detail("next_review_at", due.UTC().Format("2006-01-02"))
	st.updated = updated
	return nil
}

// classify tags err with kind unless it already carries it.
func classify(err, kind error, op string) error {
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", kind, op, err)
}
