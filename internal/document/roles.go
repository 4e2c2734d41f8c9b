package document

import (
	"fmt"
	"strings"
)

// Role is a per-document workflow role.
type Role string

const (
	RoleAuthor   Role = "AUTHOR"
	RoleReviewer Role = "REVIEWER"
	RoleApprover Role = "APPROVER"
)

// WorkflowRoles lists the assignable per-document roles.
var WorkflowRoles = []Role{RoleAuthor, RoleReviewer, RoleApprover}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAuthor, RoleReviewer, RoleApprover:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown workflow role %q", ErrInvalidInput, s)
}

// SystemRole is a global role supplied by the identity source.
type SystemRole string

const (
	SystemAdmin  SystemRole = "ADMIN"
	SystemQMB    SystemRole = "QMB"
	SystemUser   SystemRole = "USER"
	SystemViewer SystemRole = "VIEWER"
)

// Actor is an already-authenticated caller.
type Actor struct {
	ID    string       `json:"id"`
	Name  string       `json:"name,omitempty"`
	Roles []SystemRole `json:"roles"`
}

// HasRole reports whether the actor holds any of the given system roles.
func (a Actor) HasRole(roles ...SystemRole) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsElevated reports QMB or ADMIN membership.
func (a Actor) IsElevated() bool {
	return a.HasRole(SystemAdmin, SystemQMB)
}

// NormalizeSystemRoles upper-cases, dedupes and drops unknown role names.
func NormalizeSystemRoles(raw []string) []SystemRole {
	seen := make(map[SystemRole]bool, len(raw))
	out := make([]SystemRole, 0, len(raw))
	for _, r := range raw {
		role := SystemRole(strings.ToUpper(strings.TrimSpace(r)))
		switch role {
		case SystemAdmin, SystemQMB, SystemUser, SystemViewer:
		default:
			continue
		}
		if !seen[role] {
			seen[role] = true
			out = append(out, role)
		}
	}
	return out
}

// Assignees maps each workflow role to the actors holding it on a document.
type Assignees map[Role][]string

// Has reports whether actor is assigned the role.
func (a Assignees) Has(role Role, actor string) bool {
	for _, id := range a[role] {
		if id == actor {
			return true
		}
	}
	return false
}

// Normalized returns a copy with trimmed, deduplicated actor ids in their
// original order and empty roles removed. Unknown roles are rejected.
func (a Assignees) Normalized() (Assignees, error) {
	out := make(Assignees, len(a))
	for role, ids := range a {
		parsed, err := ParseRole(string(role))
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(ids))
		list := make([]string, 0, len(ids))
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			list = append(list, id)
		}
		if len(list) == 0 {
			continue
		}
		out[parsed] = append(out[parsed], list...)
	}
	return out, nil
}

// SameSingleton reports whether both roles are held by exactly the same
// single actor.
func (a Assignees) SameSingleton(x, y Role) bool {
	return len(a[x]) == 1 && len(a[y]) == 1 && a[x][0] == a[y][0]
}
