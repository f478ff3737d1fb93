package models

import "time"

type Role string

const (
	RoleBusiness   Role = "business"
	RoleInfluencer Role = "influencer"
	RoleAdmin      Role = "admin"
)

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
	UserDeleted   UserStatus = "deleted"
)

// User is a marketplace account. Users are never hard-deleted.
type User struct {
	ID            string     `json:"id" db:"id"`
	Email         string     `json:"email" db:"email"`
	Role          Role       `json:"role" db:"role"`
	DisplayName   string     `json:"display_name" db:"display_name"`
	FollowerCount int64      `json:"follower_count" db:"follower_count"`
	Status        UserStatus `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

func (u *User) Active() bool {
	return u.Status == UserActive
}
