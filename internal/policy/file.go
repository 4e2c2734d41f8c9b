package policy

import (
	"fmt"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/workflow"
	"github.com/spf13/viper"
)

// fileType uses pointers so that keys absent from the file keep the
// built-in value of the type.
type fileType struct {
	Label              string    `mapstructure:"label"`
	RequiresReview     *bool     `mapstructure:"requires_review"`
	RequiresApproval   *bool     `mapstructure:"requires_approval"`
	AllowSelfReview    *bool     `mapstructure:"allow_self_review"`
	AllowSelfApproval  *bool     `mapstructure:"allow_self_approval"`
	ReviewMonths       int       `mapstructure:"review_months"`
	RequiredSignatures *[]string `mapstructure:"required_signatures"`
}

func (ft fileType) apply(s TypeSpec) (TypeSpec, error) {
	if ft.Label != "" {
		s.Label = ft.Label
	}
	if ft.RequiresReview != nil {
		s.SkipReview = !*ft.RequiresReview
	}
	if ft.RequiresApproval != nil {
		s.SkipApproval = !*ft.RequiresApproval
	}
	if ft.AllowSelfReview != nil {
		s.AllowSelfReview = *ft.AllowSelfReview
	}
	if ft.AllowSelfApproval != nil {
		s.AllowSelfApproval = *ft.AllowSelfApproval
	}
	if ft.ReviewMonths > 0 {
		s.ReviewMonths = ft.ReviewMonths
	}
	if ft.RequiredSignatures != nil {
		roles := make([]document.Role, 0, len(*ft.RequiredSignatures))
		for _, raw := range *ft.RequiredSignatures {
			r, err := document.ParseRole(raw)
			if err != nil {
				return TypeSpec{}, err
			}
			roles = append(roles, r)
		}
		s.RequiredSignatures = roles
	}
	return s, nil
}

// LoadFile reads action_roles, separation_of_duties and document_types from a
// policy file. Missing sections keep the built-in defaults.
func LoadFile(path string) (*Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read permission policy %s: %w", path, err)
	}

	var opts []Option

	if v.IsSet("action_roles") {
		raw := v.GetStringMapStringSlice("action_roles")
		m := make(map[workflow.Action][]document.SystemRole, len(raw))
		for name, roles := range raw {
			a, err := workflow.ParseAction(name)
			if err != nil {
				return nil, err
			}
			m[a] = document.NormalizeSystemRoles(roles)
		}
		opts = append(opts, WithActionRoles(m))
	}

	if v.IsSet("separation_of_duties") {
		sep := DefaultSeparation()
		if v.IsSet("separation_of_duties.no_self_review") {
			sep.NoSelfReview = v.GetBool("separation_of_duties.no_self_review")
		}
		if v.IsSet("separation_of_duties.no_self_approval") {
			sep.NoSelfApproval = v.GetBool("separation_of_duties.no_self_approval")
		}
		if v.IsSet("separation_of_duties.reviewer_not_approver") {
			sep.ReviewerNotApprover = v.GetBool("separation_of_duties.reviewer_not_approver")
		}
		opts = append(opts, WithSeparation(sep))
	}

	if v.IsSet("document_types") {
		var raw map[string]fileType
		if err := v.UnmarshalKey("document_types", &raw); err != nil {
			return nil, fmt.Errorf("decode document_types: %w", err)
		}
		reg := DefaultTypes()
		for code, ft := range raw {
			t, err := document.ParseType(code)
			if err != nil {
				return nil, err
			}
			spec, err := ft.apply(reg.Get(t))
			if err != nil {
				return nil, fmt.Errorf("document type %s: %w", code, err)
			}
			reg.Register(spec)
		}
		opts = append(opts, WithTypes(reg))
	}

	return New(opts...), nil
}
