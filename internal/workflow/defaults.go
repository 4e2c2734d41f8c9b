package workflow

import "github.com/qmdoc/doccontrol/internal/document"

var (
	forward = func(role document.Role) Condition {
		return Condition{Role: role, Signature: true, Render: true}
	}
	elevatedWithReason = Condition{Elevated: true, Reason: true}

	yes, no = true, false

	reviewed   = TypeCondition{Review: &yes}
	approved   = TypeCondition{Approval: &yes}
	reviewOnly = TypeCondition{Approval: &no}

	// types without review go straight to approval, or are released by
	// their author when they skip approval too
	approvalOnly = TypeCondition{Review: &no, Approval: &yes}
	authorOnly   = TypeCondition{Review: &no, Approval: &no}
)

// DefaultRules is the canonical QM workflow.
func DefaultRules() []TransitionRule {
	rules := []TransitionRule{
		{From: document.StatusInReview, To: document.StatusApproval, Action: ActionRequestApproval, When: approved, Requires: forward(document.RoleReviewer)},
		{From: document.StatusInReview, To: document.StatusPublished, Action: ActionRequestApproval, When: reviewOnly, Requires: forward(document.RoleReviewer)},
		{From: document.StatusApproval, To: document.StatusPublished, Action: ActionPublish, Requires: forward(document.RoleApprover)},

		{From: document.StatusPublished, To: document.StatusArchived, Action: ActionArchive, Requires: elevatedWithReason},
		{From: document.StatusPublished, To: document.StatusObsolete, Action: ActionArchive, Requires: elevatedWithReason},
		{From: document.StatusPublished, To: document.StatusRevision, Action: ActionCreateRevision, Requires: Condition{Role: document.RoleAuthor, Reason: true}},

		{From: document.StatusInReview, To: document.StatusDraft, Action: ActionAbortWorkflow},
		{From: document.StatusApproval, To: document.StatusDraft, Action: ActionAbortWorkflow},
		{From: document.StatusDraft, To: document.StatusDraft, Action: ActionAbortWorkflow},
		{From: document.StatusRevision, To: document.StatusRevision, Action: ActionAbortWorkflow},

		{From: document.StatusDraft, To: document.StatusDraft, Action: ActionStartWorkflow, Requires: Condition{Role: document.RoleAuthor}},
		{From: document.StatusRevision, To: document.StatusRevision, Action: ActionStartWorkflow, Requires: Condition{Role: document.RoleAuthor}},
		{From: document.StatusPublished, To: document.StatusPublished, Action: ActionExtendReview, Requires: elevatedWithReason},
	}
	for _, s := range []document.Status{document.StatusDraft, document.StatusRevision} {
		rules = append(rules,
			TransitionRule{From: s, To: document.StatusInReview, Action: ActionSubmitReview, When: reviewed, Requires: forward(document.RoleAuthor)},
			TransitionRule{From: s, To: document.StatusApproval, Action: ActionSubmitReview, When: approvalOnly, Requires: forward(document.RoleAuthor)},
			TransitionRule{From: s, To: document.StatusPublished, Action: ActionSubmitReview, When: authorOnly, Requires: forward(document.RoleAuthor)},
		)
	}
	for _, s := range []document.Status{document.StatusInReview, document.StatusApproval, document.StatusPublished, document.StatusRevision, document.StatusObsolete} {
		rules = append(rules, TransitionRule{From: s, To: document.StatusDraft, Action: ActionBackToDraft, Requires: elevatedWithReason})
	}
	for _, s := range []document.Status{document.StatusDraft, document.StatusInReview, document.StatusApproval, document.StatusPublished, document.StatusRevision} {
		rules = append(rules, TransitionRule{From: s, To: s, Action: ActionAssignRoles, Requires: Condition{Elevated: true}})
	}
	for _, s := range []document.Status{document.StatusDraft, document.StatusRevision, document.StatusInReview} {
		rules = append(rules, TransitionRule{From: s, To: s, Action: ActionEditMetadata, Requires: Condition{Role: document.RoleAuthor}})
	}
	for _, s := range []document.Status{document.StatusDraft, document.StatusRevision, document.StatusInReview, document.StatusApproval} {
		rules = append(rules, TransitionRule{From: s, To: s, Action: ActionCheckIn, Requires: Condition{Role: s.Phase()}})
	}
	for _, s := range []document.Status{document.StatusPublished, document.StatusArchived, document.StatusObsolete} {
		rules = append(rules, TransitionRule{From: s, To: s, Action: ActionPrint})
	}
	for _, s := range document.Statuses {
		rules = append(rules,
			TransitionRule{From: s, To: s, Action: ActionComment},
			TransitionRule{From: s, To: s, Action: ActionRead},
		)
	}
	return rules
}

// DefaultForbidden is the deny-list applied on top of the rules.
func DefaultForbidden() []string {
	return []string{
		"ARCHIVED->*",
		"OBSOLETE->PUBLISHED",
		"OBSOLETE->IN_REVIEW",
		"OBSOLETE->APPROVAL",
		"PUBLISHED->IN_REVIEW",
		"PUBLISHED->APPROVAL",
	}
}

// Default returns the built-in policy.
func Default() *Policy {
	p, err := New(DefaultRules(), DefaultForbidden())
	if err != nil {
		panic(err)
	}
	return p
}
