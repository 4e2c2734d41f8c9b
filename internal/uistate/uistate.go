// Package uistate derives which controls a client should offer for one
// document and actor. It performs no I/O.
package uistate

import (
	"fmt"
	"time"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/policy"
	"github.com/qmdoc/doccontrol/internal/workflow"
)

// Input is everything Compute looks at.
type Input struct {
	Document    *document.Document
	Actor       document.Actor
	Assignees   document.Assignees
	Signatures  []document.SignatureAttachment
	Workflow    *workflow.Policy
	Permissions *policy.Policy
	Now         time.Time
}

// State is the projection returned to clients.
type State struct {
	ShowRead               bool     `json:"show_read"`
	ShowPrint              bool     `json:"show_print"`
	ShowSign               bool     `json:"show_sign"`
	ShowArchive            bool     `json:"show_archive"`
	ShowEditRoles          bool     `json:"show_edit_roles"`
	ShowWorkflowStart      bool     `json:"show_workflow_start"`
	ShowWorkflowAbort      bool     `json:"show_workflow_abort"`
	HighlightExpired       bool     `json:"highlight_expired"`
	CanExtendWithoutChange bool     `json:"can_extend_without_change"`
	SignAction             string   `json:"sign_action,omitempty"`
	Actions                []string `json:"actions"`
	InfoHint               string   `json:"info_hint,omitempty"`
}

// SigningAction returns the forward action of the status' phase, or "".
func SigningAction(s document.Status) workflow.Action {
	switch s {
	case document.StatusDraft, document.StatusRevision:
		return workflow.ActionSubmitReview
	case document.StatusInReview:
		return workflow.ActionRequestApproval
	case document.StatusApproval:
		return workflow.ActionPublish
	}
	return ""
}

// Compute is idempotent for identical input.
func Compute(in Input) State {
	d := in.Document
	ctx := policy.ContextFor(d, in.Actor, in.Assignees, in.Signatures)
	available := map[workflow.Action]bool{}
	for _, a := range in.Workflow.ActionsAt(d.Status, d.Type) {
		available[a] = true
	}
	allowed := func(a workflow.Action) bool {
		if !available[a] {
			return false
		}
		if rule, err := in.Workflow.Resolve(a, d.Status, d.Type, ""); err != nil || (rule.Requires.Elevated && !in.Actor.IsElevated()) {
			return false
		}
		return in.Permissions.Evaluate(a, ctx) == nil
	}

	st := State{Actions: []string{}}
	for _, a := range workflow.Actions {
		if allowed(a) {
			st.Actions = append(st.Actions, string(a))
		}
	}
	sign := SigningAction(d.Status)
	st.ShowRead = allowed(workflow.ActionRead)
	st.ShowPrint = allowed(workflow.ActionPrint)
	st.ShowSign = sign != "" && allowed(sign)
	if st.ShowSign {
		st.SignAction = string(sign)
	}
	st.ShowArchive = allowed(workflow.ActionArchive)
	st.ShowEditRoles = allowed(workflow.ActionAssignRoles)
	st.ShowWorkflowStart = !d.Workflow.Active && allowed(workflow.ActionStartWorkflow)
	st.ShowWorkflowAbort = d.IsInActiveWorkflow() && allowed(workflow.ActionAbortWorkflow)
	st.HighlightExpired = d.Status == document.StatusPublished && d.IsExpired(in.Now)
	st.CanExtendWithoutChange = allowed(workflow.ActionExtendReview)
	st.InfoHint = hint(in, st, sign, ctx)
	return st
}

func hint(in Input, st State, sign workflow.Action, ctx policy.Context) string {
	d := in.Document
	switch {
	case d.Status == document.StatusArchived:
		return "Archived documents are read-only."
	case d.Status == document.StatusObsolete:
		return "This document is obsolete; only QMB or ADMIN can return it to draft."
	case st.HighlightExpired:
		return fmt.Sprintf("Review period expired on %s.", d.NextReviewAt.Format("2006-01-02"))
	case st.ShowSign:
		return fmt.Sprintf("Your signature as %s is required.", sign.SigningStep())
	case sign != "" && d.IsInActiveWorkflow():
		if _, reason := in.Permissions.CanExecute(sign, ctx); reason != "" {
			return fmt.Sprintf("Waiting for %s: %s.", sign.SigningStep(), reason)
		}
	}
	return ""
}
