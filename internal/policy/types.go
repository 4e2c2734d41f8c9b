package policy

import "github.com/qmdoc/doccontrol/internal/document"

// DefaultReviewMonths is the validity period of a published document when
// its type does not say otherwise.
const DefaultReviewMonths = 12

// TypeSpec holds per-type workflow switches. The zero value is the strict
// type: reviewed, approved and signed at every step.
type TypeSpec struct {
	Code              document.Type `json:"code"`
	Label             string        `json:"label"`
	SkipReview        bool          `json:"skipReview,omitempty"`
	SkipApproval      bool          `json:"skipApproval,omitempty"`
	AllowSelfReview   bool          `json:"allowSelfReview"`
	AllowSelfApproval bool          `json:"allowSelfApproval"`
	ReviewMonths      int           `json:"reviewMonths"`
	// RequiredSignatures lists the steps that need a signed artifact. nil
	// means every step; an empty list means none.
	RequiredSignatures []document.Role `json:"requiredSignatures,omitempty"`
}

func (s TypeSpec) RequiresReview() bool   { return !s.SkipReview }
func (s TypeSpec) RequiresApproval() bool { return !s.SkipApproval }

// SignatureRequired reports whether step must be executed with a signed
// artifact.
func (s TypeSpec) SignatureRequired(step document.Role) bool {
	if s.RequiredSignatures == nil {
		return true
	}
	for _, r := range s.RequiredSignatures {
		if r == step {
			return true
		}
	}
	return false
}

// TypeRegistry resolves type specs, falling back to a permissive-free
// default for unknown codes.
type TypeRegistry struct {
	specs map[document.Type]TypeSpec
}

func NewTypeRegistry(specs ...TypeSpec) *TypeRegistry {
	r := &TypeRegistry{specs: make(map[document.Type]TypeSpec, len(specs))}
	for _, s := range specs {
		r.Register(s)
	}
	return r
}

// DefaultTypes registers every known type. Procedures, manuals, protocols
// and other documents run the full chain; forms go straight to approval and
// may be approved by their author; work instructions, records and external
// documents are released by their author alone.
func DefaultTypes() *TypeRegistry {
	labels := map[document.Type]string{
		document.TypeDraftForm:       "Form",
		document.TypeWorkInstruction: "Work instruction",
		document.TypeProcedure:       "Procedure",
		document.TypeRecord:          "Record",
		document.TypeExternal:        "External document",
		document.TypeProtocol:        "Protocol",
		document.TypeManual:          "QM manual",
		document.TypeOther:           "Other",
	}
	unsigned := []document.Role{}
	r := NewTypeRegistry()
	for _, t := range document.Types {
		s := TypeSpec{Code: t, Label: labels[t], ReviewMonths: DefaultReviewMonths}
		switch t {
		case document.TypeDraftForm:
			s.SkipReview = true
			s.AllowSelfApproval = true
			s.RequiredSignatures = unsigned
		case document.TypeWorkInstruction, document.TypeRecord, document.TypeExternal:
			s.SkipReview, s.SkipApproval = true, true
			s.RequiredSignatures = unsigned
		}
		r.Register(s)
	}
	return r
}

func (r *TypeRegistry) Register(s TypeSpec) {
	if s.ReviewMonths <= 0 {
		s.ReviewMonths = DefaultReviewMonths
	}
	if s.Label == "" {
		s.Label = string(s.Code)
	}
	r.specs[s.Code] = s
}

// Get never fails: unknown types get the strict default.
func (r *TypeRegistry) Get(t document.Type) TypeSpec {
	if s, ok := r.specs[t]; ok {
		return s
	}
	return TypeSpec{Code: t, Label: string(t), ReviewMonths: DefaultReviewMonths}
}

// RequiresReview and RequiresApproval let the registry drive the
// type-dependent edges of the state machine.
func (r *TypeRegistry) RequiresReview(t document.Type) bool { return r.Get(t).RequiresReview() }

func (r *TypeRegistry) RequiresApproval(t document.Type) bool { return r.Get(t).RequiresApproval() }

// All returns the registered specs in document.Types order.
func (r *TypeRegistry) All() []TypeSpec {
	out := make([]TypeSpec, 0, len(r.specs))
	for _, t := range document.Types {
		if s, ok := r.specs[t]; ok {
			out = append(out, s)
		}
	}
	return out
}

// SetReviewMonths moves every type still on the built-in period to months.
func (r *TypeRegistry) SetReviewMonths(months int) {
	if months <= 0 || months == DefaultReviewMonths {
		return
	}
	for code, s := range r.specs {
		if s.ReviewMonths == DefaultReviewMonths {
			s.ReviewMonths = months
			r.specs[code] = s
		}
	}
}
