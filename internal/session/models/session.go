package models

import "slices"

// Status is the session state machine:
//
//	Unknown -> Hydrating -> {Authenticated, Unauthenticated}
//	Authenticated -> Unauthenticated (logout, unrecoverable refresh failure)
//	Unauthenticated -> Authenticated (login)
type Status int

const (
	StatusUnknown Status = iota
	StatusHydrating
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusHydrating:
		return "hydrating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Resolved reports whether hydration has finished.
func (s Status) Resolved() bool {
	return s == StatusAuthenticated || s == StatusUnauthenticated
}

// Snapshot is an immutable view of the session. Empty token strings mean
// "no token" and an empty Error means no error.
//
// IsAuthenticated always equals User != nil && AccessToken != "".
type Snapshot struct {
	Status          Status
	IsAuthenticated bool
	User            *User
	Roles           []Role
	Permissions     []string
	AccessToken     string
	RefreshToken    string
	Loading         bool
	Error           string

	// Seq increases with every transition. A subscriber fed from several
	// goroutines drops a snapshot older than the last one it saw.
	Seq uint64
}

// Normalize recomputes IsAuthenticated and the matching status. Every
// transition goes through it so the invariant cannot drift.
func (s Snapshot) Normalize() Snapshot {
	s.IsAuthenticated = s.User != nil && s.AccessToken != ""
	if s.Status.Resolved() {
		if s.IsAuthenticated {
			s.Status = StatusAuthenticated
		} else {
			s.Status = StatusUnauthenticated
		}
	}
	return s
}

// Clone deep-copies slices and the user.
func (s Snapshot) Clone() Snapshot {
	s.User = s.User.Clone()
	s.Roles = slices.Clone(s.Roles)
	s.Permissions = slices.Clone(s.Permissions)
	return s
}

// HasRole reports whether the session holds a role with the exact name.
func (s Snapshot) HasRole(name string) bool {
	for _, r := range s.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether the flat permission set contains code.
func (s Snapshot) HasPermission(code string) bool {
	return slices.Contains(s.Permissions, code)
}

// RoleNames lists role names in session order.
func (s Snapshot) RoleNames() []string {
	names := make([]string, 0, len(s.Roles))
	for _, r := range s.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Empty is the logged-out session.
func Empty() Snapshot {
	return Snapshot{Status: StatusUnauthenticated}
}
