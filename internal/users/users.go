// Package users stores customer and staff accounts.
package users

import (
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
)

type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Phone          string    `json:"phone"`
	ProfilePicture string    `json:"profile_picture"`
	PasswordHash   string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	IsStaff        bool      `json:"is_staff"`
	IsSuperuser    bool      `json:"is_superuser"`
	DateJoined     time.Time `json:"date_joined"`
}

func (u User) Identity() *auth.Identity {
	return &auth.Identity{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}
}

// NewUser is what the operator CLI supplies.
type NewUser struct {
	Username    string `json:"username" validate:"required,max=150"`
	Email       string `json:"email" validate:"omitempty,email"`
	Password    string `json:"password" validate:"required,min=8"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

func (n NewUser) Validate() error {
	n.Username = strings.TrimSpace(n.Username)
	return apperr.Struct(n)
}

// Update is the admin-editable part of an account. Nil fields are left alone.
type Update struct {
	Email          *string `json:"email" validate:"omitempty,email"`
	FirstName      *string `json:"first_name" validate:"omitempty,max=150"`
	LastName       *string `json:"last_name" validate:"omitempty,max=150"`
	Phone          *string `json:"phone" validate:"omitempty,max=20"`
	ProfilePicture *string `json:"profile_picture"`
	IsActive       *bool   `json:"is_active"`
	IsStaff        *bool   `json:"is_staff"`
	IsSuperuser    *bool   `json:"is_superuser"`
}

func (u Update) Validate() error { return apperr.Struct(u) }

func (u Update) Apply(dst *User) {
	set := func(p *string, v *string) {
		if v != nil {
			*p = strings.TrimSpace(*v)
		}
	}
	set(&dst.Email, u.Email)
	set(&dst.FirstName, u.FirstName)
	set(&dst.LastName, u.LastName)
	set(&dst.Phone, u.Phone)
	set(&dst.ProfilePicture, u.ProfilePicture)
	if u.IsActive != nil {
		dst.IsActive = *u.IsActive
	}
	if u.IsStaff != nil {
		dst.IsStaff = *u.IsStaff
	}
	if u.IsSuperuser != nil {
		dst.IsSuperuser = *u.IsSuperuser
	}
}
