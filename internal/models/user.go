package models

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the AppUser privilege label.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleRegistered Role = "registered"
	RoleActivist   Role = "activist"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleRegistered, RoleActivist, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// AppUser is a row from the `user` table. It only exists while a session
// is authenticated.
type AppUser struct {
	ID             string  `gorm:"column:user_id;primaryKey" json:"user_id"`
	Name           string  `gorm:"column:user_name" json:"user_name"`
	Email          string  `gorm:"column:user_email" json:"user_email"`
	MunicipalityID *string `gorm:"column:user_mun" json:"user_mun"`
	Role           Role    `gorm:"column:user_role" json:"user_role"`
	Premium        bool    `gorm:"column:user_premium" json:"user_premium"`
}

// TableName binds the row to the `user` table.
func (AppUser) TableName() string { return "user" }

// Validate enforces the row shape at the decoding boundary.
func (u *AppUser) Validate() error {
	if u.ID == "" {
		return errors.New("user_id is required")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("unknown user_role %q", u.Role)
	}
	return nil
}

// FallbackUser builds the minimal registered profile used when the auth
// provider knows the account but the profile row is missing.
func FallbackUser(id, email string) *AppUser {
	name, _, _ := strings.Cut(email, "@")
	if name == "" {
		name = "User"
	}
	return &AppUser{
		ID:      id,
		Name:    name,
		Email:   email,
		Role:    RoleRegistered,
		Premium: false,
	}
}

// CanInteract reports whether the user may like, comment and report.
func (u *AppUser) CanInteract() bool {
	return u != nil && u.Role != RoleGuest
}

// CanModerate reports whether the user has moderation rights.
func (u *AppUser) CanModerate() bool {
	return u != nil && (u.Role == RoleAdmin || u.Role == RoleSuperAdmin)
}

// CanCreate reports whether the user may create objects of type t.
func (u *AppUser) CanCreate(t ObjectType) bool {
	if !u.CanInteract() {
		return false
	}
	switch t {
	case TypePerson, TypeNews:
		return u.CanModerate()
	case TypeInitiative:
		return u.Role == RoleActivist || u.CanModerate()
	default:
		return true
	}
}

// CanEdit reports whether the user may edit or delete content authored by
// authorID.
func (u *AppUser) CanEdit(authorID *string) bool {
	if u.CanModerate() {
		return true
	}
	return u.CanInteract() && authorID != nil && *authorID == u.ID
}

// Badge returns the label shown next to privileged authors, or "".
func (r Role) Badge() string {
	switch r {
	case RoleActivist:
		return "Activist"
	case RoleAdmin:
		return "Mayor"
	case RoleSuperAdmin:
		return "SuperAdmin"
	}
	return ""
}
