package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID          int64     `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	Username    string    `db:"username" json:"username"`
	Role        string    `db:"role" json:"role"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	IsSuspended bool      `db:"is_suspended" json:"is_suspended"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanAct reports whether the account may call authenticated endpoints.
func (u *User) CanAct() bool {
	return u.IsActive && !u.IsSuspended
}
