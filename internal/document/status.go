package document

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a controlled document.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusInReview  Status = "IN_REVIEW"
	StatusApproval  Status = "APPROVAL"
	StatusPublished Status = "PUBLISHED"
	StatusRevision  Status = "REVISION"
	StatusObsolete  Status = "OBSOLETE"
	StatusArchived  Status = "ARCHIVED"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{
	StatusDraft,
	StatusInReview,
	StatusApproval,
	StatusPublished,
	StatusRevision,
	StatusObsolete,
	StatusArchived,
}

// ParseStatus accepts the status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	v := Status(strings.ToUpper(strings.TrimSpace(s)))
	if v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// IsInActiveWorkflow reports whether the status belongs to a running
// review/approval cycle.
func (s Status) IsInActiveWorkflow() bool {
	return s == StatusInReview || s == StatusApproval
}

// IsArchivable reports whether a document in this status may be archived or
// made obsolete.
func (s Status) IsArchivable() bool {
	return s == StatusPublished
}

// IsEditable reports whether the working artifact may still be replaced.
func (s Status) IsEditable() bool {
	switch s {
	case StatusDraft, StatusRevision, StatusInReview, StatusApproval:
		return true
	}
	return false
}

// IsTerminal reports whether the status only allows leaving through an
// explicit revision.
func (s Status) IsTerminal() bool {
	return s == StatusArchived || s == StatusObsolete
}

// IsRetired reports whether the artifact lives in the archive area.
func (s Status) IsRetired() bool {
	return s.IsTerminal()
}

// Phase returns the workflow role currently empowered to act, or "" when no
// role-bound step is pending.
func (s Status) Phase() Role {
	switch s {
	case StatusDraft, StatusRevision:
		return RoleAuthor
	case StatusInReview:
		return RoleReviewer
	case StatusApproval:
		return RoleApprover
	}
	return ""
}
