package policy

import (
	"fmt"
	"strings"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/workflow"
)

// Context is everything the permission policy looks at. It is assembled by
// the caller; the policy does no I/O.
type Context struct {
	ActorID        string
	OwnerID        string
	Status         document.Status
	DocType        document.Type
	AssignedRoles  document.Assignees
	SystemRoles    []document.SystemRole
	Signatures     []document.SignatureAttachment
	Cycle          int
	WorkflowActive bool
	StartedBy      string
}

// ContextFor builds a Context from a stored document and an actor.
func ContextFor(d *document.Document, actor document.Actor, assigned document.Assignees, sigs []document.SignatureAttachment) Context {
	return Context{
		ActorID:        actor.ID,
		OwnerID:        d.OwnerID,
		Status:         d.Status,
		DocType:        d.Type,
		AssignedRoles:  assigned,
		SystemRoles:    actor.Roles,
		Signatures:     sigs,
		Cycle:          d.Workflow.Cycle,
		WorkflowActive: d.Workflow.Active,
		StartedBy:      d.Workflow.StartedBy,
	}
}

func (c Context) hasSystemRole(roles ...document.SystemRole) bool {
	return document.Actor{ID: c.ActorID, Roles: c.SystemRoles}.HasRole(roles...)
}

func (c Context) isOwner() bool {
	return c.OwnerID != "" && strings.EqualFold(c.ActorID, c.OwnerID)
}

// Separation switches separation-of-duties rules on or off globally. Types
// may still opt out through TypeSpec.
type Separation struct {
	NoSelfReview        bool `json:"noSelfReview"`
	NoSelfApproval      bool `json:"noSelfApproval"`
	ReviewerNotApprover bool `json:"reviewerNotApprover"`
}

// Policy evaluates whether an actor may execute an action.
type Policy struct {
	actionRoles map[workflow.Action][]document.SystemRole
	separation  Separation
	types       *TypeRegistry
}

// Option customizes a Policy.
type Option func(*Policy)

// WithActionRoles overrides the allowed system roles for the given actions.
func WithActionRoles(m map[workflow.Action][]document.SystemRole) Option {
	return func(p *Policy) {
		for a, roles := range m {
			p.actionRoles[a] = append([]document.SystemRole(nil), roles...)
		}
	}
}

func WithSeparation(s Separation) Option {
	return func(p *Policy) { p.separation = s }
}

func WithTypes(r *TypeRegistry) Option {
	return func(p *Policy) {
		if r != nil {
			p.types = r
		}
	}
}

// DefaultActionRoles is the built-in action -> system role mapping.
func DefaultActionRoles() map[workflow.Action][]document.SystemRole {
	elevated := []document.SystemRole{document.SystemAdmin, document.SystemQMB}
	m := make(map[workflow.Action][]document.SystemRole, len(workflow.Actions))
	for _, a := range workflow.Actions {
		m[a] = elevated
	}
	m[workflow.ActionComment] = []document.SystemRole{document.SystemAdmin, document.SystemQMB, document.SystemUser}
	m[workflow.ActionPrint] = []document.SystemRole{document.SystemAdmin, document.SystemQMB, document.SystemUser, document.SystemViewer}
	m[workflow.ActionRead] = []document.SystemRole{document.SystemAdmin, document.SystemQMB, document.SystemUser, document.SystemViewer}
	return m
}

// DefaultSeparation enables every separation-of-duties rule.
func DefaultSeparation() Separation {
	return Separation{NoSelfReview: true, NoSelfApproval: true, ReviewerNotApprover: true}
}

func New(opts ...Option) *Policy {
	p := &Policy{
		actionRoles: DefaultActionRoles(),
		separation:  DefaultSeparation(),
		types:       DefaultTypes(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Types exposes the type registry.
func (p *Policy) Types() *TypeRegistry { return p.types }

// AllowedRoles returns the system roles that satisfy the action outright.
func (p *Policy) AllowedRoles(a workflow.Action) []document.SystemRole {
	if isElevatedOnly(a) {
		return []document.SystemRole{document.SystemAdmin, document.SystemQMB}
	}
	return append([]document.SystemRole(nil), p.actionRoles[a]...)
}

func isElevatedOnly(a workflow.Action) bool {
	switch a {
	case workflow.ActionArchive, workflow.ActionAssignRoles, workflow.ActionBackToDraft, workflow.ActionExtendReview:
		return true
	}
	return false
}

// CanExecute reports whether the action is allowed, with a human-readable
// reason on denial.
func (p *Policy) CanExecute(a workflow.Action, ctx Context) (bool, string) {
	if err := p.Evaluate(a, ctx); err != nil {
		if d, ok := document.AsDenial(err); ok {
			return false, d.Reason
		}
		return false, err.Error()
	}
	return true, ""
}

// Evaluate returns nil when the action is allowed and a *document.Denial
// otherwise.
func (p *Policy) Evaluate(a workflow.Action, ctx Context) error {
	action := string(a)
	if strings.TrimSpace(ctx.ActorID) == "" {
		return document.Deny(document.ErrForbidden, action, "no authenticated actor")
	}

	// archive, edit roles and the other override actions ignore assignments.
	if isElevatedOnly(a) {
		if !ctx.hasSystemRole(document.SystemAdmin, document.SystemQMB) {
			return document.Deny(document.ErrForbidden, action, fmt.Sprintf("%s requires the QMB or ADMIN role", a))
		}
		return nil
	}

	if a == workflow.ActionAbortWorkflow {
		if ctx.hasSystemRole(document.SystemAdmin, document.SystemQMB) {
			return nil
		}
		if ctx.StartedBy != "" && ctx.StartedBy == ctx.ActorID {
			return nil
		}
		return document.Deny(document.ErrForbidden, action, "only the actor who started the workflow, QMB or ADMIN may abort it")
	}

	if !p.permitted(a, ctx) {
		return document.Deny(document.ErrForbidden, action, p.missingRoleReason(a, ctx))
	}

	if a == workflow.ActionRequestApproval && p.types.RequiresApproval(ctx.DocType) && len(ctx.AssignedRoles[document.RoleApprover]) == 0 {
		return document.Deny(document.ErrForbidden, action, "at least one APPROVER must be assigned before the document can leave review")
	}

	return p.separationOfDuties(a, ctx)
}

func (p *Policy) permitted(a workflow.Action, ctx Context) bool {
	if ctx.hasSystemRole(p.actionRoles[a]...) {
		return true
	}
	role, phaseBound, ok := assignedRoleFor(a, ctx.Status)
	if !ok {
		return false
	}
	if role == "" {
		// any per-document assignment will do
		for _, r := range document.WorkflowRoles {
			if ctx.AssignedRoles.Has(r, ctx.ActorID) {
				return true
			}
		}
		return ctx.isOwner()
	}
	if phaseBound && ctx.Status.Phase() != role {
		return false
	}
	if ctx.AssignedRoles.Has(role, ctx.ActorID) {
		return true
	}
	return role == document.RoleAuthor && ctx.isOwner()
}

// assignedRoleFor names the per-document role that may execute a when no
// system role does. role "" means any assignment.
func assignedRoleFor(a workflow.Action, s document.Status) (role document.Role, phaseBound bool, ok bool) {
	switch a {
	case workflow.ActionSubmitReview:
		return document.RoleAuthor, true, true
	case workflow.ActionRequestApproval:
		return document.RoleReviewer, true, true
	case workflow.ActionPublish:
		return document.RoleApprover, true, true
	case workflow.ActionCheckIn:
		if s.Phase() == "" {
			return "", false, false
		}
		return s.Phase(), true, true
	case workflow.ActionStartWorkflow, workflow.ActionCreateRevision, workflow.ActionEditMetadata:
		return document.RoleAuthor, false, true
	case workflow.ActionComment, workflow.ActionRead, workflow.ActionPrint:
		return "", false, true
	}
	return "", false, false
}

func (p *Policy) missingRoleReason(a workflow.Action, ctx Context) string {
	roles := make([]string, 0, len(p.actionRoles[a]))
	for _, r := range p.actionRoles[a] {
		roles = append(roles, string(r))
	}
	reason := fmt.Sprintf("%s requires one of [%s]", a, strings.Join(roles, ", "))
	role, phaseBound, ok := assignedRoleFor(a, ctx.Status)
	switch {
	case !ok:
	case role == "":
		reason += " or a role on this document"
	case phaseBound && ctx.Status.Phase() != role:
		reason += fmt.Sprintf(" or the %s role, which is not the active phase in %s", role, ctx.Status)
	default:
		reason += fmt.Sprintf(" or assignment as %s", role)
	}
	return reason
}

func (p *Policy) separationOfDuties(a workflow.Action, ctx Context) error {
	spec := p.types.Get(ctx.DocType)
	action := string(a)
	switch a {
	case workflow.ActionRequestApproval:
		if p.separation.NoSelfReview && !spec.AllowSelfReview && ctx.isOwner() {
			return document.Deny(document.ErrSeparationOfDuties, action, "authors may not review their own document")
		}
		if p.separation.ReviewerNotApprover && !spec.AllowSelfApproval && ctx.AssignedRoles.SameSingleton(document.RoleReviewer, document.RoleApprover) {
			return document.Deny(document.ErrSeparationOfDuties, action,
				fmt.Sprintf("reviewer and approver are the same single actor (%s)", ctx.AssignedRoles[document.RoleReviewer][0]))
		}
	case workflow.ActionPublish:
		if p.separation.NoSelfApproval && !spec.AllowSelfApproval && ctx.isOwner() {
			return document.Deny(document.ErrSeparationOfDuties, action, "authors may not approve their own document")
		}
		if p.separation.ReviewerNotApprover && !spec.AllowSelfApproval {
			if ctx.AssignedRoles.SameSingleton(document.RoleReviewer, document.RoleApprover) {
				return document.Deny(document.ErrSeparationOfDuties, action,
					fmt.Sprintf("reviewer and approver are the same single actor (%s)", ctx.AssignedRoles[document.RoleReviewer][0]))
			}
			if signer := StepExecutor(ctx.Signatures, document.RoleReviewer, ctx.Cycle); signer == ctx.ActorID {
				return document.Deny(document.ErrSeparationOfDuties, action, "the reviewer of this cycle may not also approve it")
			}
		}
	}
	return nil
}

// StepExecutor returns who executed step in cycle: the first signature row
// for that step wins.
func StepExecutor(sigs []document.SignatureAttachment, step document.Role, cycle int) string {
	var first *document.SignatureAttachment
	for i := range sigs {
		s := &sigs[i]
		if s.Step != string(step) || s.Cycle != cycle {
			continue
		}
		if first == nil || s.SignedAt.Before(first.SignedAt) || (s.SignedAt.Equal(first.SignedAt) && s.ID < first.ID) {
			first = s
		}
	}
	if first == nil {
		return ""
	}
	return first.ActorID
}

// CanSignInPhase reports whether the actor may execute the signing action of
// the document's current phase.
func (p *Policy) CanSignInPhase(ctx Context) bool {
	var a workflow.Action
	switch ctx.Status {
	case document.StatusDraft, document.StatusRevision:
		a = workflow.ActionSubmitReview
	case document.StatusInReview:
		a = workflow.ActionRequestApproval
	case document.StatusApproval:
		a = workflow.ActionPublish
	default:
		return false
	}
	ok, _ := p.CanExecute(a, ctx)
	return ok
}
