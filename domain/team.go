package domain

import "strings"

// Role is the effective role of an actor within one agency. The owner is a
// regular member entry tagged RoleOwner; there is exactly one per agency.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleEditor       Role = "editor"
	RoleViewer       Role = "viewer"
	RoleUnaffiliated Role = "unaffiliated"
)

// GlobalRole is an account-level role assigned by deployment config. It is
// independent of agency membership and never derived from it.
type GlobalRole string

const (
	GlobalAdmin GlobalRole = "admin"
	GlobalNone  GlobalRole = "none"
)

// Agency statuses.
const (
	AgencyActive    = "active"
	AgencySuspended = "suspended"
)

// Member is one entry in an agency's member list.
type Member struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Agency is the organizational unit owning one board and one member list.
type Agency struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []Member `json:"members"`
	Status  string   `json:"status"`
	Plan    string   `json:"plan,omitempty"`
}

// Owner returns the agency's owner entry.
func (a Agency) Owner() (Member, bool) {
	for _, m := range a.Members {
		if m.Role == RoleOwner {
			return m, true
		}
	}
	return Member{}, false
}

// ResolveRole computes the actor's effective role. Ownership wins even when
// the actor also appears with another role, and absence of affiliation yields
// RoleUnaffiliated rather than an error.
func ResolveRole(actorID string, a Agency) Role {
	if owner, ok := a.Owner(); ok && owner.ID == actorID {
		return RoleOwner
	}
	for _, m := range a.Members {
		if m.ID == actorID && m.Role != RoleOwner {
			return m.Role
		}
	}
	return RoleUnaffiliated
}

// CanViewContent reports whether the role may read team-scoped content.
func CanViewContent(r Role) bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

// CanEditContent reports whether the role may mutate board content.
func CanEditContent(r Role) bool {
	return r == RoleOwner || r == RoleEditor
}

// CanManageTeam reports whether the role may add or remove members and change
// member roles.
func CanManageTeam(r Role) bool {
	return r == RoleOwner
}

// CanRemoveMember reports whether the role may remove a member holding
// targetRole. The owner can never be removed.
func CanRemoveMember(r, targetRole Role) bool {
	return r == RoleOwner && targetRole != RoleOwner
}

// CanAdministerAgencies reports whether the global role may operate the
// agency plane: listing, creating, deleting and suspending agencies.
func CanAdministerAgencies(r GlobalRole) bool {
	return r == GlobalAdmin
}

func validSubRole(r Role) bool {
	return r == RoleEditor || r == RoleViewer
}

// AddMember adds a collaborator. The permission check lives here rather than
// at the call site so it cannot be bypassed.
func (a *Agency) AddMember(caller Role, memberID string, role Role) error {
	if !CanManageTeam(caller) {
		return ErrPermissionDenied
	}
	if strings.TrimSpace(memberID) == "" {
		return ValidationError{Field: "memberId", Reason: "must not be empty"}
	}
	if !validSubRole(role) {
		return ValidationError{Field: "role", Reason: "must be editor or viewer"}
	}
	for _, m := range a.Members {
		if m.ID == memberID {
			return DuplicateError{Kind: "member", ID: memberID}
		}
	}
	a.Members = append(a.Members, Member{ID: memberID, Role: role})
	return nil
}

// RemoveMember removes a collaborator. Removing the owner is rejected under
// any caller role; ownership changes only by reassignment, which is not
// exposed here.
func (a *Agency) RemoveMember(caller Role, memberID string) error {
	for i, m := range a.Members {
		if m.ID != memberID {
			continue
		}
		if !CanRemoveMember(caller, m.Role) {
			return ErrPermissionDenied
		}
		a.Members = append(a.Members[:i], a.Members[i+1:]...)
		return nil
	}
	if !CanManageTeam(caller) {
		return ErrPermissionDenied
	}
	return NotFoundError{Kind: "member", ID: memberID}
}

// ChangeMemberRole sets a collaborator's sub-role. A missing member is a
// no-op; the owner entry cannot be retargeted.
func (a *Agency) ChangeMemberRole(caller Role, memberID string, newRole Role) error {
	if !CanManageTeam(caller) {
		return ErrPermissionDenied
	}
	if !validSubRole(newRole) {
		return ValidationError{Field: "role", Reason: "must be editor or viewer"}
	}
	for i, m := range a.Members {
		if m.ID != memberID {
			continue
		}
		if m.Role == RoleOwner {
			return ErrPermissionDenied
		}
		a.Members[i].Role = newRole
		return nil
	}
	return nil
}

// Clone returns a deep copy of the agency for optimistic updates.
func (a Agency) Clone() Agency {
	out := a
	out.Members = make([]Member, len(a.Members))
	copy(out.Members, a.Members)
	return out
}
