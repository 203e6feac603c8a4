package domain

// Actor is the caller on whose behalf a service operation runs. The zero
// value is an anonymous caller.
type Actor struct {
	ID        string
	Role      Role
	Email     string
	SessionID string
}

func (a Actor) Anonymous() bool { return a.ID == "" }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
