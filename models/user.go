package models

import (
	"time"
)

// User model. DepartmentID is nil for users not attached to a department (e.g. admins).
type User struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Username       string      `gorm:"size:255;not null;unique" json:"username"`
	HashedPassword []byte      `gorm:"not null" json:"-"`
	Name           string      `gorm:"size:255" json:"name"`
	Email          string      `gorm:"size:255" json:"email"`
	RoleID         *uint       `gorm:"index" json:"role_id"`
	Role           Role        `gorm:"foreignKey:RoleID;references:ID" json:"role"`
	DepartmentID   *uint       `gorm:"index" json:"department_id"`
	Department     *Department `gorm:"foreignKey:DepartmentID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"department,omitempty"`
}

// RoleName returns the loaded role's name; Role must be preloaded.
func (u *User) RoleName() RoleName {
	return u.Role.Name
}

// SameDepartment reports whether the user belongs to department id. A nil id never matches.
func (u *User) SameDepartment(id *uint) bool {
	if u.DepartmentID == nil || id == nil {
		return false
	}
	return *u.DepartmentID == *id
}
