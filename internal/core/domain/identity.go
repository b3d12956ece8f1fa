package domain

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Identity is the authenticated caller, passed explicitly into every
// service operation.
type Identity struct {
	UserID int64
	Role   Role
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

func (i Identity) Authenticated() bool { return i.UserID > 0 }

// CanAccess reports whether the caller may act on an order owned by userID.
func (i Identity) CanAccess(userID int64) bool {
	return i.IsAdmin() || i.UserID == userID
}
