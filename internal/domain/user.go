package domain

import "time"

type Role string

const (
	RoleParent  Role = "PARENT"
	RoleTrainer Role = "TRAINER"
	RoleAdmin   Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleTrainer, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	CreatedOn time.Time `json:"created_on"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Actor is the already-authenticated caller of an operation. TrainerID is set
// only for users holding a trainer profile.
type Actor struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	TrainerID string `json:"trainer_id,omitempty"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanManageSession reports whether the actor may mark or delete a session
// assigned to trainerID.
func (a Actor) CanManageSession(trainerID string) bool {
	if a.IsAdmin() {
		return true
	}
	return a.Role == RoleTrainer && a.TrainerID != "" && a.TrainerID == trainerID
}
