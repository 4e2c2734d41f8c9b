package uistate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/policy"
	"github.com/qmdoc/doccontrol/internal/workflow"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func input(d *document.Document, actor document.Actor, assignees document.Assignees) Input {
	return Input{
		Document:    d,
		Actor:       actor,
		Assignees:   assignees,
		Workflow:    workflow.Default(),
		Permissions: policy.New(),
		Now:         now,
	}
}

func doc(status document.Status) *document.Document {
	return &document.Document{
		ID:      "A01VA004",
		Title:   "Cleaning",
		Type:    document.TypeProcedure,
		Status:  status,
		Version: document.InitialVersion,
		OwnerID: "alice",
	}
}

func TestComputeDraftForOwner(t *testing.T) {
	alice := document.Actor{ID: "alice", Roles: []document.SystemRole{document.SystemUser}}
	st := Compute(input(doc(document.StatusDraft), alice, nil))

	assert.True(t, st.ShowRead)
	assert.False(t, st.ShowPrint)
	assert.True(t, st.ShowSign)
	assert.Equal(t, "submit_review", st.SignAction)
	assert.False(t, st.ShowArchive)
	assert.False(t, st.ShowEditRoles)
	assert.True(t, st.ShowWorkflowStart)
	assert.False(t, st.ShowWorkflowAbort)
	assert.Equal(t, "Your signature as AUTHOR is required.", st.InfoHint)
	assert.Contains(t, st.Actions, "edit_metadata")
	assert.NotContains(t, st.Actions, "assign_roles")
}

func TestComputePublishedExpiredForQMB(t *testing.T) {
	d := doc(document.StatusPublished)
	due := now.AddDate(0, 0, -3)
	d.NextReviewAt = &due
	qmb := document.Actor{ID: "quinn", Roles: []document.SystemRole{document.SystemQMB}}

	st := Compute(input(d, qmb, nil))
	assert.True(t, st.ShowArchive)
	assert.True(t, st.ShowPrint)
	assert.True(t, st.ShowEditRoles)
	assert.True(t, st.HighlightExpired)
	assert.True(t, st.CanExtendWithoutChange)
	assert.False(t, st.ShowSign)
	assert.Equal(t, "Review period expired on 2025-05-29.", st.InfoHint)
}

func TestComputeApprovalSeparationOfDuties(t *testing.T) {
	d := doc(document.StatusApproval)
	d.Workflow = document.Workflow{Active: true, StartedBy: "alice", Cycle: 1}
	bob := document.Actor{ID: "bob", Roles: []document.SystemRole{document.SystemUser}}
	assignees := document.Assignees{
		document.RoleReviewer: {"bob"},
		document.RoleApprover: {"bob"},
	}

	st := Compute(input(d, bob, assignees))
	assert.False(t, st.ShowSign)
	assert.False(t, st.ShowWorkflowAbort)
	assert.Equal(t, "Waiting for APPROVER: reviewer and approver are the same single actor (bob).", st.InfoHint)

	alice := document.Actor{ID: "alice", Roles: []document.SystemRole{document.SystemUser}}
	assert.True(t, Compute(input(d, alice, assignees)).ShowWorkflowAbort)
}

func TestComputeArchivedIsReadOnly(t *testing.T) {
	viewer := document.Actor{ID: "vera", Roles: []document.SystemRole{document.SystemViewer}}
	in := input(doc(document.StatusArchived), viewer, nil)

	st := Compute(in)
	assert.True(t, st.ShowRead)
	assert.True(t, st.ShowPrint)
	assert.False(t, st.ShowSign)
	assert.False(t, st.ShowArchive)
	assert.False(t, st.ShowWorkflowStart)
	assert.Equal(t, "Archived documents are read-only.", st.InfoHint)
	assert.Equal(t, st, Compute(in))
}
