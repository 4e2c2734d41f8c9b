package lifecycle

import (
	"context"
	"sort"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/policy"
	"github.com/qmdoc/doccontrol/internal/repository"
	"github.com/qmdoc/doccontrol/internal/uistate"
	"github.com/qmdoc/doccontrol/internal/workflow"
)

// Search lists documents; retired ones only when asked for.
func (s *Service) Search(ctx context.Context, q repository.Query) ([]document.Summary, error) {
	return s.store.Search(ctx, q)
}

// view is a loaded document with the data the policies look at.
type view struct {
	doc       *document.Document
	assignees document.Assignees
	sigs      []document.SignatureAttachment
}

func (s *Service) load(ctx context.Context, id string) (*view, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &view{doc: d}
	if v.assignees, err = s.store.GetAssignees(ctx, id); err != nil {
		return nil, err
	}
	if v.sigs, err = s.store.Signatures(ctx, id); err != nil {
		return nil, err
	}
	return v, nil
}

// readable loads a document the actor is allowed to read.
func (s *Service) readable(ctx context.Context, id string, actor document.Actor) (*view, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Evaluate(workflow.ActionRead, policy.ContextFor(v.doc, actor, v.assignees, v.sigs)); err != nil {
		return nil, err
	}
	return v, nil
}

// GetDetails returns the document with resolved display names, signatures
// and comments. A missing current artifact surfaces as
// document.ErrStorageConsistency.
func (s *Service) GetDetails(ctx context.Context, id string, actor document.Actor) (*document.Details, error) {
	v, err := s.readable(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := s.store.Verify(v.doc); err != nil {
		return nil, err
	}
	comments, err := s.store.Comments(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := []string{v.doc.OwnerID}
	for _, list := range v.assignees {
		ids = append(ids, list...)
	}
	for _, sig := range v.sigs {
		ids = append(ids, sig.ActorID)
	}
	for _, c := range comments {
		ids = append(ids, c.ActorID)
	}
	names := s.displayNames(ctx, ids)
	for i := range comments {
		comments[i].ActorName = names[comments[i].ActorID]
	}
	assigneeNames := map[string]string{}
	for _, list := range v.assignees {
		for _, a := range list {
			assigneeNames[a] = names[a]
		}
	}
	if v.assignees == nil {
		v.assignees = document.Assignees{}
	}
	if v.sigs == nil {
		v.sigs = []document.SignatureAttachment{}
	}
	if comments == nil {
		comments = []document.Comment{}
	}

	return &document.Details{
		Document:       v.doc,
		DisplayVersion: v.doc.DisplayVersion(),
		OwnerName:      names[v.doc.OwnerID],
		Assignees:      v.assignees,
		AssigneeNames:  assigneeNames,
		Signatures:     v.sigs,
		Comments:       comments,
		Expired:        v.doc.Status == document.StatusPublished && v.doc.IsExpired(s.now()),
	}, nil
}

// displayNames resolves ids through the directory; unknown ids map to
// themselves.
func (s *Service) displayNames(ctx context.Context, ids []string) map[string]string {
	seen := map[string]bool{}
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)
	out := make(map[string]string, len(uniq))
	var resolved map[string]string
	if s.directory != nil {
		resolved = s.directory.DisplayNames(ctx, uniq)
	}
	for _, id := range uniq {
		if name := resolved[id]; name != "" {
			out[id] = name
		} else {
			out[id] = id
		}
	}
	return out
}

// UIState projects which controls the actor should see.
func (s *Service) UIState(ctx context.Context, id string, actor document.Actor) (uistate.State, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return uistate.State{}, err
	}
	return uistate.Compute(uistate.Input{
		Document:    v.doc,
		Actor:       actor,
		Assignees:   v.assignees,
		Signatures:  v.sigs,
		Workflow:    s.workflow,
		Permissions: s.perms,
		Now:         s.now(),
	}), nil
}

// AuditTrail returns the entries of a readable document in insertion order.
func (s *Service) AuditTrail(ctx context.Context, id string, actor document.Actor) ([]document.AuditEntry, error) {
	if _, err := s.readable(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.store.AuditTrail(ctx, id)
}

// Assignees returns the role assignments of a readable document.
func (s *Service) Assignees(ctx context.Context, id string, actor document.Actor) (document.Assignees, error) {
	v, err := s.readable(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if v.assignees == nil {
		return document.Assignees{}, nil
	}
	return v.assignees, nil
}
