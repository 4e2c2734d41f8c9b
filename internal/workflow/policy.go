package workflow

import (
	"fmt"
	"strings"

	"github.com/qmdoc/doccontrol/internal/document"
)

// Condition is what a rule requires beyond being reachable.
type Condition struct {
	// Role is the per-document role that may execute the rule in addition to
	// the system roles configured for the action.
	Role document.Role `json:"role,omitempty"`
	// Elevated restricts the rule to QMB/ADMIN regardless of assignment.
	Elevated  bool `json:"elevated,omitempty"`
	Reason    bool `json:"reason,omitempty"`
	Signature bool `json:"signature,omitempty"`
	Render    bool `json:"render,omitempty"`
}

// TypeCondition restricts a rule to document types whose workflow steps
// match. A nil field matches every type.
type TypeCondition struct {
	Review   *bool `json:"requiresReview,omitempty"`
	Approval *bool `json:"requiresApproval,omitempty"`
}

// TypeTraits tells the state machine which steps a document type runs
// through. *policy.TypeRegistry implements it.
type TypeTraits interface {
	RequiresReview(t document.Type) bool
	RequiresApproval(t document.Type) bool
}

// TransitionRule is one edge of the state machine. In-place rules (From ==
// To) gate actions that do not change status.
type TransitionRule struct {
	From     document.Status `json:"from"`
	To       document.Status `json:"to"`
	Action   Action          `json:"action"`
	Types    []document.Type `json:"types,omitempty"`
	When     TypeCondition   `json:"when"`
	Requires Condition       `json:"requires"`
}

func (r TransitionRule) InPlace() bool { return r.From == r.To }

func (r TransitionRule) appliesTo(t document.Type) bool {
	if len(r.Types) == 0 {
		return true
	}
	for _, x := range r.Types {
		if x == t {
			return true
		}
	}
	return false
}

type forbiddenEdge struct {
	from document.Status
	to   document.Status // "" matches any target
}

// Policy is the document state machine: an allow-list of rules plus an
// independent deny-list.
type Policy struct {
	rules     []TransitionRule
	forbidden []forbiddenEdge
	types     TypeTraits
}

// UseTypes sets the type traits that conditional rules are evaluated
// against. Without traits every type is treated as reviewed and approved.
func (p *Policy) UseTypes(t TypeTraits) { p.types = t }

// Types returns the configured traits, nil when none were set.
func (p *Policy) Types() TypeTraits { return p.types }

// matches reports whether r applies to a document of type t.
func (p *Policy) matches(r TransitionRule, t document.Type) bool {
	if !r.appliesTo(t) {
		return false
	}
	review, approval := true, true
	if p.types != nil {
		review, approval = p.types.RequiresReview(t), p.types.RequiresApproval(t)
	}
	if r.When.Review != nil && *r.When.Review != review {
		return false
	}
	if r.When.Approval != nil && *r.When.Approval != approval {
		return false
	}
	return true
}

// New builds a policy. Forbidden patterns look like "FROM->TO" or "FROM->*".
func New(rules []TransitionRule, forbidden []string) (*Policy, error) {
	p := &Policy{rules: append([]TransitionRule(nil), rules...)}
	for _, r := range rules {
		if !r.From.Valid() || !r.To.Valid() {
			return nil, fmt.Errorf("%w: rule %s has unknown status %s->%s", document.ErrInvalidInput, r.Action, r.From, r.To)
		}
		if _, err := ParseAction(string(r.Action)); err != nil {
			return nil, err
		}
	}
	for _, raw := range forbidden {
		e, err := parseForbidden(raw)
		if err != nil {
			return nil, err
		}
		p.forbidden = append(p.forbidden, e)
	}
	return p, nil
}

func parseForbidden(raw string) (forbiddenEdge, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(raw), "->")
	if !ok {
		return forbiddenEdge{}, fmt.Errorf("%w: forbidden transition %q lacks '->'", document.ErrInvalidInput, raw)
	}
	from, err := document.ParseStatus(left)
	if err != nil {
		return forbiddenEdge{}, err
	}
	right = strings.TrimSpace(right)
	if right == "*" || right == "" {
		return forbiddenEdge{from: from}, nil
	}
	to, err := document.ParseStatus(right)
	if err != nil {
		return forbiddenEdge{}, err
	}
	return forbiddenEdge{from: from, to: to}, nil
}

// IsTransitionForbidden checks the deny-list only.
func (p *Policy) IsTransitionForbidden(from, to document.Status) bool {
	if from == to {
		return false
	}
	for _, e := range p.forbidden {
		if e.from == from && (e.to == "" || e.to == to) {
			return true
		}
	}
	return false
}

// TransitionsFrom returns the legal status-changing rules for a document in
// status s of type t.
func (p *Policy) TransitionsFrom(s document.Status, t document.Type) []TransitionRule {
	var out []TransitionRule
	for _, r := range p.rules {
		if r.From != s || r.InPlace() || !p.matches(r, t) {
			continue
		}
		if p.IsTransitionForbidden(r.From, r.To) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ActionsAt lists the distinct actions available in status s, in-place ones
// included.
func (p *Policy) ActionsAt(s document.Status, t document.Type) []Action {
	seen := map[Action]bool{}
	var out []Action
	for _, r := range p.rules {
		if r.From != s || !p.matches(r, t) || p.IsTransitionForbidden(r.From, r.To) {
			continue
		}
		if !seen[r.Action] {
			seen[r.Action] = true
			out = append(out, r.Action)
		}
	}
	return out
}

// Resolve finds the rule for action from status s. target disambiguates
// actions with several destinations (archive -> ARCHIVED|OBSOLETE); empty
// picks the first declared one. A rule is returned only when it is in the
// allow-list and not in the deny-list.
func (p *Policy) Resolve(a Action, s document.Status, t document.Type, target document.Status) (TransitionRule, error) {
	var candidate *TransitionRule
	for i := range p.rules {
		r := p.rules[i]
		if r.Action != a || r.From != s || !p.matches(r, t) {
			continue
		}
		if target != "" && r.To != target {
			continue
		}
		candidate = &r
		break
	}
	if candidate == nil {
		reason := fmt.Sprintf("%s is not allowed from %s", a, s)
		if target != "" {
			reason = fmt.Sprintf("%s to %s is not allowed from %s", a, target, s)
		}
		return TransitionRule{}, document.Deny(document.ErrInvalidTransition, string(a), reason)
	}
	if p.IsTransitionForbidden(candidate.From, candidate.To) {
		return TransitionRule{}, document.Deny(document.ErrInvalidTransition, string(a),
			fmt.Sprintf("transition %s->%s is forbidden", candidate.From, candidate.To))
	}
	return *candidate, nil
}

// RequiresReason reports whether an action needs a non-empty reason.
func (p *Policy) RequiresReason(r TransitionRule) bool {
	if r.Requires.Reason {
		return true
	}
	switch r.Action {
	case ActionBackToDraft, ActionArchive, ActionCreateRevision, ActionExtendReview:
		return true
	}
	return r.To.IsTerminal() && !r.InPlace()
}

// Rules returns a copy of the configured rules.
func (p *Policy) Rules() []TransitionRule {
	return append([]TransitionRule(nil), p.rules...)
}
