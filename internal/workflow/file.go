package workflow

import (
	"fmt"
	"strings"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/spf13/viper"
)

type fileRule struct {
	From      string   `mapstructure:"from"`
	To        string   `mapstructure:"to"`
	Action    string   `mapstructure:"action"`
	Types     []string `mapstructure:"types"`
	Role      string   `mapstructure:"role"`
	Elevated  bool     `mapstructure:"elevated"`
	Reason    bool     `mapstructure:"reason"`
	Signature bool     `mapstructure:"signature"`
	Render    bool     `mapstructure:"render"`

	RequiresReview   *bool `mapstructure:"requires_review"`
	RequiresApproval *bool `mapstructure:"requires_approval"`
}

// LoadFile reads workflow_transitions and forbidden_transitions from a policy
// file (any format viper understands). Status-changing rules from the file
// replace the defaults; in-place rules always come from DefaultRules. Keys
// absent from the file keep their defaults.
func LoadFile(path string) (*Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read workflow policy %s: %w", path, err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Policy, error) {
	rules := DefaultRules()
	if v.IsSet("workflow_transitions") {
		var raw []fileRule
		if err := v.UnmarshalKey("workflow_transitions", &raw); err != nil {
			return nil, fmt.Errorf("decode workflow_transitions: %w", err)
		}
		parsed := make([]TransitionRule, 0, len(raw))
		for _, fr := range raw {
			r, err := fr.rule()
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, r)
		}
		for _, r := range DefaultRules() {
			if r.InPlace() {
				parsed = append(parsed, r)
			}
		}
		rules = parsed
	}
	forbidden := DefaultForbidden()
	if v.IsSet("forbidden_transitions") {
		forbidden = v.GetStringSlice("forbidden_transitions")
	}
	return New(rules, forbidden)
}

func (fr fileRule) rule() (TransitionRule, error) {
	from, err := document.ParseStatus(fr.From)
	if err != nil {
		return TransitionRule{}, err
	}
	to, err := document.ParseStatus(fr.To)
	if err != nil {
		return TransitionRule{}, err
	}
	action, err := ParseAction(fr.Action)
	if err != nil {
		return TransitionRule{}, err
	}
	r := TransitionRule{
		From:   from,
		To:     to,
		Action: action,
		When:   TypeCondition{Review: fr.RequiresReview, Approval: fr.RequiresApproval},
		Requires: Condition{
			Elevated:  fr.Elevated,
			Reason:    fr.Reason,
			Signature: fr.Signature,
			Render:    fr.Render,
		},
	}
	if strings.TrimSpace(fr.Role) != "" {
		role, err := document.ParseRole(fr.Role)
		if err != nil {
			return TransitionRule{}, err
		}
		r.Requires.Role = role
	}
	for _, t := range fr.Types {
		typ, err := document.ParseType(t)
		if err != nil {
			return TransitionRule{}, err
		}
		r.Types = append(r.Types, typ)
	}
	return r, nil
}
