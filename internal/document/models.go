package document

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Type is the document category.
type Type string

const (
	TypeDraftForm       Type = "FB"
	TypeWorkInstruction Type = "AA"
	TypeProcedure       Type = "VA"
	TypeRecord          Type = "LS"
	TypeExternal        Type = "EXT"
	TypeProtocol        Type = "PR"
	TypeManual          Type = "QMH"
	TypeOther           Type = "OTHER"
)

// Types lists every known document type.
var Types = []Type{
	TypeDraftForm,
	TypeWorkInstruction,
	TypeProcedure,
	TypeRecord,
	TypeExternal,
	TypeProtocol,
	TypeManual,
	TypeOther,
}

var typeAliases = map[string]Type{
	"DRAFT-FORM":       TypeDraftForm,
	"FORM":             TypeDraftForm,
	"WORK-INSTRUCTION": TypeWorkInstruction,
	"PROCEDURE":        TypeProcedure,
	"RECORD":           TypeRecord,
	"EX":               TypeExternal,
	"EXTERNAL":         TypeExternal,
	"PROTOCOL":         TypeProtocol,
	"QM":               TypeManual,
	"MANUAL":           TypeManual,
	"AM":               TypeOther,
	"XO":               TypeOther,
}

// ParseType accepts a type code or its long name.
func ParseType(s string) (Type, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	for _, t := range Types {
		if string(t) == raw {
			return t, nil
		}
	}
	if t, ok := typeAliases[raw]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, s)
}

func (t Type) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil && t != ""
}

// Version is the canonical comparable document version.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// InitialVersion is the version of a freshly created document.
var InitialVersion = Version{Major: 1, Minor: 0}

// ParseVersion reads "major" or "major.minor".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty version", ErrInvalidInput)
	}
	majorPart, minorPart, hasMinor := strings.Cut(s, ".")
	if majorPart == "" {
		return Version{}, fmt.Errorf("%w: minor version without major in %q", ErrInvalidInput, s)
	}
	major, err := strconv.Atoi(majorPart)
	if err != nil {
		return Version{}, fmt.Errorf("%w: bad major version %q", ErrInvalidInput, s)
	}
	v := Version{Major: major}
	if hasMinor {
		minor, err := strconv.Atoi(minorPart)
		if err != nil {
			return Version{}, fmt.Errorf("%w: bad minor version %q", ErrInvalidInput, s)
		}
		v.Minor = minor
	}
	return v, v.Validate()
}

func (v Version) Validate() error {
	if v.Major < 1 {
		return fmt.Errorf("%w: version_major must be >= 1", ErrInvalidInput)
	}
	if v.Minor < 0 {
		return fmt.Errorf("%w: version_minor must be >= 0", ErrInvalidInput)
	}
	return nil
}

// Label renders "major.minor".
func (v Version) Label() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// NextMajor is the version assigned on publish.
func (v Version) NextMajor() Version { return Version{Major: v.Major + 1} }

// NextMinor is the version assigned when a revision is opened.
func (v Version) NextMinor() Version { return Version{Major: v.Major, Minor: v.Minor + 1} }

// Less orders versions.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// Workflow is the in-flight review cycle bookkeeping of a document.
type Workflow struct {
	Active    bool   `json:"active"`
	StartedBy string `json:"startedBy,omitempty"`
	Cycle     int    `json:"cycle"`
}

// Document is the aggregate root.
type Document struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Type             Type       `json:"type"`
	Status           Status     `json:"status"`
	Version          Version    `json:"version"`
	Revision         int        `json:"revision"`
	CurrentArtifact  string     `json:"currentArtifactPath"`
	EditableArtifact string     `json:"editableArtifactPath,omitempty"`
	SigningArtifact  string     `json:"signingArtifactPath,omitempty"`
	OwnerID          string     `json:"ownerId"`
	UpdatedBy        string     `json:"updatedBy,omitempty"`
	StatusReason     string     `json:"statusReason,omitempty"`
	Workflow         Workflow   `json:"workflow"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	NextReviewAt     *time.Time `json:"nextReviewAt,omitempty"`
}

// New builds a DRAFT document at version 1.0.
func New(id, title string, typ Type, owner string, now time.Time) (*Document, error) {
	d := &Document{
		ID:        strings.TrimSpace(id),
		Title:     strings.TrimSpace(title),
		Type:      typ,
		Status:    StatusDraft,
		Version:   InitialVersion,
		OwnerID:   strings.TrimSpace(owner),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the invariants that hold regardless of storage.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}
	if strings.ContainsAny(d.ID, `/\`) || d.ID == "." || d.ID == ".." {
		return fmt.Errorf("%w: document id %q is not a valid path segment", ErrInvalidInput, d.ID)
	}
	if d.Title == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidInput)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, d.Type)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, d.Status)
	}
	if err := d.Version.Validate(); err != nil {
		return err
	}
	if d.Revision < 0 {
		return fmt.Errorf("%w: negative revision", ErrInvalidInput)
	}
	return nil
}

func (d *Document) IsInActiveWorkflow() bool { return d.Workflow.Active || d.Status.IsInActiveWorkflow() }

func (d *Document) IsArchivable() bool { return d.Status.IsArchivable() }

// VersionLabel is the canonical comparable version string.
func (d *Document) VersionLabel() string { return d.Version.Label() }

// DisplayVersion adds the in-review revision counter, e.g. "1.0 (rev 3)".
func (d *Document) DisplayVersion() string {
	if d.Revision > 0 {
		return fmt.Sprintf("%s (rev %d)", d.Version.Label(), d.Revision)
	}
	return d.Version.Label()
}

// IsExpired reports whether the review date lies before now's calendar day.
func (d *Document) IsExpired(now time.Time) bool {
	if d.NextReviewAt == nil {
		return false
	}
	y1, m1, d1 := now.Date()
	y2, m2, d2 := d.NextReviewAt.In(now.Location()).Date()
	today := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	due := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return today.After(due)
}

// IsPortable reports whether an artifact path is already in a fixed-layout
// format that needs no rendering.
func IsPortable(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	if d.NextReviewAt != nil {
		t := *d.NextReviewAt
		c.NextReviewAt = &t
	}
	return &c
}

// Action result values stored on audit entries.
const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultFailure = "failure"
)

// AuditEntry is an immutable record of an executed or attempted action.
type AuditEntry struct {
	ID                int64             `json:"id"`
	EventID           string            `json:"eventId"`
	DocumentID        string            `json:"documentId"`
	Action            string            `json:"action"`
	FromStatus        Status            `json:"fromStatus,omitempty"`
	ToStatus          Status            `json:"toStatus,omitempty"`
	ActorID           string            `json:"actorId"`
	Reason            string            `json:"reason,omitempty"`
	Result            string            `json:"actionResult"`
	ArtifactReference string            `json:"artifactReference,omitempty"`
	OccurredAt        time.Time         `json:"occurredAt"`
	Details           map[string]string `json:"details,omitempty"`
}

// SignatureAttachment records one signing event.
type SignatureAttachment struct {
	ID           int64     `json:"id"`
	DocumentID   string    `json:"documentId"`
	Step         string    `json:"step"`
	ActorID      string    `json:"actorId"`
	SignedAt     time.Time `json:"signedAt"`
	ArtifactPath string    `json:"artifactPath"`
	Reason       string    `json:"reason,omitempty"`
	Cycle        int       `json:"cycle"`
}

// Comment is a free-text note on a document.
type Comment struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"documentId"`
	ActorID    string    `json:"actorId"`
	ActorName  string    `json:"actorName,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PrintRecord counts controlled copies issued to one actor.
type PrintRecord struct {
	DocumentID    string    `json:"documentId"`
	ActorID       string    `json:"actorId"`
	Count         int       `json:"count"`
	LastPrintedAt time.Time `json:"lastPrintedAt"`
}

// Summary is the list/search projection.
type Summary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Type         Type       `json:"type"`
	Status       Status     `json:"status"`
	Version      string     `json:"version"`
	OwnerID      string     `json:"ownerId"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	NextReviewAt *time.Time `json:"nextReviewAt,omitempty"`
}

// Summarize projects a document for listings.
func Summarize(d *Document) Summary {
	return Summary{
		ID:           d.ID,
		Title:        d.Title,
		Type:         d.Type,
		Status:       d.Status,
		Version:      d.VersionLabel(),
		OwnerID:      d.OwnerID,
		UpdatedAt:    d.UpdatedAt,
		NextReviewAt: d.NextReviewAt,
	}
}

// Details is the single-document projection with resolved display names.
type Details struct {
	Document       *Document             `json:"document"`
	DisplayVersion string                `json:"displayVersion"`
	OwnerName      string                `json:"ownerName"`
	Assignees      Assignees             `json:"assignees"`
	AssigneeNames  map[string]string     `json:"assigneeNames"`
	Signatures     []SignatureAttachment `json:"signatures"`
	Comments       []Comment             `json:"comments"`
	Expired        bool                  `json:"expired"`
}
