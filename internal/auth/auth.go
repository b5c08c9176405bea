// Package auth describes who is making a request and what they may do.
package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

type Identity struct {
	UserID      int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Capability is a predicate over the caller. A nil identity is anonymous.
type Capability func(id *Identity) bool

func Authenticated(id *Identity) bool { return id != nil && id.IsActive }

// CanCheckout gates cart checkout, order history and reviews.
func CanCheckout(id *Identity) bool { return Authenticated(id) }

// CanAdmin gates every admin operation.
func CanAdmin(id *Identity) bool {
	return Authenticated(id) && (id.IsStaff || id.IsSuperuser)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns nil for anonymous requests.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}

var ErrBadCredentials = errors.New("invalid username or password")

func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(hash, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrBadCredentials
	}
	return nil
}
