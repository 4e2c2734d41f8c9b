package workflow

import (
	"fmt"
	"strings"

	"github.com/qmdoc/doccontrol/internal/document"
)

// Action identifies an operation a caller may request on a document.
type Action string

const (
	ActionSubmitReview    Action = "submit_review"
	ActionRequestApproval Action = "request_approval"
	ActionPublish         Action = "publish"
	ActionBackToDraft     Action = "back_to_draft"
	ActionArchive         Action = "archive"
	ActionAssignRoles     Action = "assign_roles"
	ActionStartWorkflow   Action = "start_workflow"
	ActionAbortWorkflow   Action = "abort_workflow"
	ActionCreateRevision  Action = "create_revision"
	ActionExtendReview    Action = "extend_review"
	ActionEditMetadata    Action = "edit_metadata"
	ActionCheckIn         Action = "check_in"
	ActionComment         Action = "comment"
	ActionPrint           Action = "print"
	ActionRead            Action = "read"
)

// Actions lists every known action.
var Actions = []Action{
	ActionSubmitReview,
	ActionRequestApproval,
	ActionPublish,
	ActionBackToDraft,
	ActionArchive,
	ActionAssignRoles,
	ActionStartWorkflow,
	ActionAbortWorkflow,
	ActionCreateRevision,
	ActionExtendReview,
	ActionEditMetadata,
	ActionCheckIn,
	ActionComment,
	ActionPrint,
	ActionRead,
}

var actionAliases = map[string]Action{
	"submit":          ActionSubmitReview,
	"send_for_review": ActionSubmitReview,
	"approve":         ActionRequestApproval,
	"release":         ActionPublish,
	"obsolete":        ActionArchive,
	"edit_roles":      ActionAssignRoles,
	"revise":          ActionCreateRevision,
	"abort":           ActionAbortWorkflow,
	"start":           ActionStartWorkflow,
}

// ParseAction resolves an action id or one of its aliases.
func ParseAction(s string) (Action, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	for _, a := range Actions {
		if string(a) == raw {
			return a, nil
		}
	}
	if a, ok := actionAliases[raw]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", document.ErrInvalidInput, s)
}

func (a Action) String() string { return string(a) }

// IsForward reports whether the action advances the document through the
// signed review chain.
func (a Action) IsForward() bool {
	switch a {
	case ActionSubmitReview, ActionRequestApproval, ActionPublish:
		return true
	}
	return false
}

// SigningStep returns the workflow role whose signature the action records.
func (a Action) SigningStep() document.Role {
	switch a {
	case ActionSubmitReview:
		return document.RoleAuthor
	case ActionRequestApproval:
		return document.RoleReviewer
	case ActionPublish:
		return document.RoleApprover
	}
	return ""
}
