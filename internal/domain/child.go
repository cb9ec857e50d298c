package domain

import "time"

// Child owns the session balance. Balance is mutated only through relative
// adjustments and may go negative.
type Child struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"`
	TrainerID *string   `json:"trainer_id,omitempty"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Balance   int       `json:"balance"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

func (c *Child) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
