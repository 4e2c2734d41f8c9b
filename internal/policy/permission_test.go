package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctx(actor string, status document.Status, roles ...document.SystemRole) Context {
	return Context{
		ActorID:     actor,
		OwnerID:     "owner",
		Status:      status,
		DocType:     document.TypeProcedure,
		SystemRoles: roles,
		Cycle:       1,
		AssignedRoles: document.Assignees{
			document.RoleReviewer: {"rev"},
			document.RoleApprover: {"appr"},
		},
	}
}

func TestReviewerApproverSingletonIsSeparationOfDuties(t *testing.T) {
	p := New()
	c := ctx("u1", document.StatusApproval)
	c.AssignedRoles = document.Assignees{
		document.RoleReviewer: {"u1"},
		document.RoleApprover: {"u1"},
	}

	ok, reason := p.CanExecute(workflow.ActionPublish, c)
	require.False(t, ok)
	require.NotEmpty(t, reason)
	require.ErrorIs(t, p.Evaluate(workflow.ActionPublish, c), document.ErrSeparationOfDuties)

	p = New(WithTypes(NewTypeRegistry(TypeSpec{Code: document.TypeProcedure, AllowSelfApproval: true})))
	ok, _ = p.CanExecute(workflow.ActionPublish, c)
	require.True(t, ok)
}

func TestSystemRolesSatisfyAction(t *testing.T) {
	p := New()
	ok, _ := p.CanExecute(workflow.ActionSubmitReview, ctx("qm", document.StatusDraft, document.SystemQMB))
	assert.True(t, ok)

	ok, reason := p.CanExecute(workflow.ActionSubmitReview, ctx("someone", document.StatusDraft, document.SystemUser))
	assert.False(t, ok)
	assert.Contains(t, reason, "requires one of [ADMIN, QMB]")
}

func TestAssignedRoleMustMatchPhase(t *testing.T) {
	p := New()

	ok, _ := p.CanExecute(workflow.ActionRequestApproval, ctx("rev", document.StatusInReview, document.SystemUser))
	assert.True(t, ok)

	ok, reason := p.CanExecute(workflow.ActionPublish, ctx("rev", document.StatusApproval, document.SystemUser))
	assert.False(t, ok)
	assert.Contains(t, reason, "APPROVER")

	// approver assignment does not help while the document is still in review
	ok, reason = p.CanExecute(workflow.ActionPublish, ctx("appr", document.StatusInReview, document.SystemUser))
	assert.False(t, ok)
	assert.Contains(t, reason, "not the active phase")

	ok, _ = p.CanExecute(workflow.ActionPublish, ctx("appr", document.StatusApproval, document.SystemUser))
	assert.True(t, ok)
}

func TestOwnerActsAsAuthor(t *testing.T) {
	p := New()
	ok, _ := p.CanExecute(workflow.ActionSubmitReview, ctx("owner", document.StatusDraft, document.SystemUser))
	assert.True(t, ok)
	ok, _ = p.CanExecute(workflow.ActionStartWorkflow, ctx("owner", document.StatusRevision))
	assert.True(t, ok)
}

func TestElevatedOnlyActionsIgnoreAssignments(t *testing.T) {
	p := New(WithActionRoles(map[workflow.Action][]document.SystemRole{
		workflow.ActionArchive: {document.SystemUser},
	}))
	c := ctx("rev", document.StatusPublished, document.SystemUser)
	for _, a := range []workflow.Action{workflow.ActionArchive, workflow.ActionAssignRoles, workflow.ActionBackToDraft} {
		ok, reason := p.CanExecute(a, c)
		assert.False(t, ok, a)
		assert.Contains(t, reason, "QMB or ADMIN")
	}
	ok, _ := p.CanExecute(workflow.ActionArchive, ctx("boss", document.StatusPublished, document.SystemQMB))
	assert.True(t, ok)
}

func TestAbortWorkflow(t *testing.T) {
	p := New()
	c := ctx("starter", document.StatusInReview, document.SystemUser)
	c.StartedBy = "starter"
	ok, _ := p.CanExecute(workflow.ActionAbortWorkflow, c)
	assert.True(t, ok)

	c.ActorID = "other"
	ok, reason := p.CanExecute(workflow.ActionAbortWorkflow, c)
	assert.False(t, ok)
	assert.Contains(t, reason, "started the workflow")

	c.SystemRoles = []document.SystemRole{document.SystemAdmin}
	ok, _ = p.CanExecute(workflow.ActionAbortWorkflow, c)
	assert.True(t, ok)
}

func TestNoSelfReviewAndApproval(t *testing.T) {
	p := New()
	c := ctx("owner", document.StatusInReview)
	c.AssignedRoles[document.RoleReviewer] = []string{"owner"}
	require.ErrorIs(t, p.Evaluate(workflow.ActionRequestApproval, c), document.ErrSeparationOfDuties)

	c = ctx("owner", document.StatusApproval)
	c.AssignedRoles[document.RoleApprover] = []string{"owner"}
	require.ErrorIs(t, p.Evaluate(workflow.ActionPublish, c), document.ErrSeparationOfDuties)

	p = New(WithTypes(NewTypeRegistry(TypeSpec{Code: document.TypeProcedure, AllowSelfReview: true, AllowSelfApproval: true})))
	require.NoError(t, p.Evaluate(workflow.ActionPublish, c))
}

func TestReviewerOfCycleCannotApprove(t *testing.T) {
	p := New()
	c := ctx("x", document.StatusApproval, document.SystemQMB)
	c.AssignedRoles[document.RoleReviewer] = []string{"x", "y"}
	now := time.Now()
	c.Signatures = []document.SignatureAttachment{
		{ID: 2, Step: string(document.RoleReviewer), ActorID: "y", SignedAt: now.Add(time.Minute), Cycle: 1},
		{ID: 1, Step: string(document.RoleReviewer), ActorID: "x", SignedAt: now, Cycle: 1},
		{ID: 0, Step: string(document.RoleReviewer), ActorID: "z", SignedAt: now.Add(-time.Hour), Cycle: 0},
	}
	err := p.Evaluate(workflow.ActionPublish, c)
	require.ErrorIs(t, err, document.ErrSeparationOfDuties)

	// previous cycle's reviewer is free to approve now
	c.ActorID = "z"
	require.NoError(t, p.Evaluate(workflow.ActionPublish, c))
}

func TestRequestApprovalNeedsApprover(t *testing.T) {
	p := New()
	c := ctx("rev", document.StatusInReview)
	delete(c.AssignedRoles, document.RoleApprover)
	ok, reason := p.CanExecute(workflow.ActionRequestApproval, c)
	assert.False(t, ok)
	assert.Contains(t, reason, "APPROVER must be assigned")
}

func TestEmptyActorDenied(t *testing.T) {
	ok, reason := New().CanExecute(workflow.ActionRead, Context{})
	assert.False(t, ok)
	assert.Equal(t, "no authenticated actor", reason)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := `
action_roles:
  comment: [ADMIN, QMB, USER, VIEWER]
separation_of_duties:
  no_self_review: false
document_types:
  EXT:
    label: External
    allow_self_approval: true
    review_months: 36
  VA:
    requires_approval: false
    required_signatures: [author, reviewer]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	p, err := LoadFile(path)
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]document.SystemRole{document.SystemAdmin, document.SystemQMB, document.SystemUser, document.SystemViewer},
		p.AllowedRoles(workflow.ActionComment))
	spec := p.Types().Get(document.TypeExternal)
	assert.True(t, spec.AllowSelfApproval)
	assert.Equal(t, 36, spec.ReviewMonths)
	assert.True(t, spec.SkipReview, "keys absent from the file keep the built-in value")
	assert.Equal(t, DefaultReviewMonths, p.Types().Get(document.TypeProcedure).ReviewMonths)
	va := p.Types().Get(document.TypeProcedure)
	assert.True(t, va.RequiresReview())
	assert.False(t, va.RequiresApproval())
	assert.True(t, va.SignatureRequired(document.RoleReviewer))
	assert.False(t, va.SignatureRequired(document.RoleApprover))

	c := ctx("owner", document.StatusInReview)
	c.AssignedRoles[document.RoleReviewer] = []string{"owner"}
	require.NoError(t, p.Evaluate(workflow.ActionRequestApproval, c))
}

func TestSetReviewMonths(t *testing.T) {
	reg := DefaultTypes()
	reg.Register(TypeSpec{Code: document.TypeManual, ReviewMonths: 36})
	reg.SetReviewMonths(24)
	assert.Equal(t, 24, reg.Get(document.TypeProcedure).ReviewMonths)
	assert.Equal(t, 36, reg.Get(document.TypeManual).ReviewMonths)

	reg.SetReviewMonths(0)
	assert.Equal(t, 24, reg.Get(document.TypeProcedure).ReviewMonths)
}

func TestDefaultTypeSteps(t *testing.T) {
	reg := DefaultTypes()

	fb := reg.Get(document.TypeDraftForm)
	assert.False(t, fb.RequiresReview())
	assert.True(t, fb.RequiresApproval())
	assert.True(t, fb.AllowSelfApproval)
	assert.False(t, fb.SignatureRequired(document.RoleApprover))

	for _, typ := range []document.Type{document.TypeWorkInstruction, document.TypeRecord, document.TypeExternal} {
		assert.False(t, reg.RequiresReview(typ), typ)
		assert.False(t, reg.RequiresApproval(typ), typ)
	}
	for _, typ := range []document.Type{document.TypeProcedure, document.TypeManual, document.Type("UNKNOWN")} {
		assert.True(t, reg.RequiresReview(typ), typ)
		assert.True(t, reg.RequiresApproval(typ), typ)
		assert.True(t, reg.Get(typ).SignatureRequired(document.RoleApprover), typ)
	}
}

func TestLeavingReviewWithoutApprovalStepNeedsNoApprover(t *testing.T) {
	p := New(WithTypes(NewTypeRegistry(TypeSpec{Code: document.TypeProtocol, SkipApproval: true})))
	c := ctx("rev", document.StatusInReview)
	c.DocType = document.TypeProtocol
	delete(c.AssignedRoles, document.RoleApprover)
	require.NoError(t, p.Evaluate(workflow.ActionRequestApproval, c))

	c.DocType = document.TypeProcedure
	require.ErrorIs(t, p.Evaluate(workflow.ActionRequestApproval, c), document.ErrForbidden)
}
