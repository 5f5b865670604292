package domain

import (
	"time"
)

// Team is a named group of role-tagged members tracking one beneficiary
// (the "student"). A team is always created through the allocation
// coordinator and normally holds exactly one license binding.
type Team struct {
	ID          string       `json:"id" db:"id"`
	Name        string       `json:"name" db:"name" validate:"required,min=1,max=120"`
	Description string       `json:"description,omitempty" db:"description"`
	StudentName string       `json:"student_name" db:"student_name" validate:"required,min=1,max=120"`
	Members     []TeamMember `json:"members" db:"members"`
	Licenses    []string     `json:"licenses" db:"licenses"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// TeamMember is one role-tagged participant of a team.
type TeamMember struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name" validate:"required"`
	Email       string     `json:"email" db:"email" validate:"required,email"`
	Role        MemberRole `json:"role" db:"role" validate:"required"`
	JoinedAt    time.Time  `json:"joined_at" db:"joined_at"`
	Description string     `json:"description,omitempty" db:"description"`
}

// MemberRole tags a member's function within a team. Coordinator and
// parent are singleton slots; a team may hold many professionals.
type MemberRole string

const (
	RoleCoordinator  MemberRole = "coordinator"
	RoleParent       MemberRole = "parent"
	RoleProfessional MemberRole = "professional"
)

// LicenseID returns the team's primary license binding, or "" when the
// team is unbound.
func (t *Team) LicenseID() string {
	if len(t.Licenses) == 0 {
		return ""
	}
	return t.Licenses[0]
}

// CountRole returns how many members carry the given role.
func (t *Team) CountRole(role MemberRole) int {
	n := 0
	for _, m := range t.Members {
		if m.Role == role {
			n++
		}
	}
	return n
}

// DirectoryUser is an identity record supplied by the external user
// directory, used to populate team members and license assignment.
type DirectoryUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
