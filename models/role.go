package models

import (
	"strings"
	"time"
)

// RoleName is the closed set of roles known to the system.
type RoleName string

const (
	RoleAdmin       RoleName = "admin"
	RoleHOD         RoleName = "hod"
	RoleDataOfficer RoleName = "data_officer"
	RoleStaff       RoleName = "staff"
)

// AllRoles lists roles in seeding order.
func AllRoles() []RoleName {
	return []RoleName{RoleAdmin, RoleHOD, RoleDataOfficer, RoleStaff}
}

// ParseRoleName normalizes s and reports whether it names a known role.
func ParseRoleName(s string) (RoleName, bool) {
	r := RoleName(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

func (r RoleName) Valid() bool {
	switch r {
	case RoleAdmin, RoleHOD, RoleDataOfficer, RoleStaff:
		return true
	}
	return false
}

func (r RoleName) Description() string {
	switch r {
	case RoleAdmin:
		return "full access"
	case RoleHOD:
		return "head of department, approves department uploads"
	case RoleDataOfficer:
		return "department data officer, uploads pending approval"
	case RoleStaff:
		return "read-only staff"
	}
	return ""
}

// CanManageKPIs reports whether the role may create, edit and delete KPIs and milestones.
func (r RoleName) CanManageKPIs() bool { return r == RoleAdmin }

// CanUpload reports whether the role may submit progress (manual or spreadsheet).
func (r RoleName) CanUpload() bool {
	return r == RoleAdmin || r == RoleHOD || r == RoleDataOfficer
}

// IsRestricted roles are scoped to their own department and their entries wait for HOD approval.
func (r RoleName) IsRestricted() bool { return r == RoleDataOfficer }

// CanApprove reports whether the role may approve or reject pending department entries.
func (r RoleName) CanApprove() bool { return r == RoleHOD }

func (r RoleName) CanDeleteUploads() bool { return r == RoleAdmin }

// CanPredict is open to every known role.
func (r RoleName) CanPredict() bool { return r.Valid() }

// SeesAllDepartments is false for roles whose listings are filtered to their own department.
func (r RoleName) SeesAllDepartments() bool { return r == RoleAdmin || r == RoleStaff }

// Role represents user roles with numeric primary key
type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        RoleName  `gorm:"size:32;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
}
