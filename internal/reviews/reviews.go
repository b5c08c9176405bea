// Package reviews stores product reviews and keeps each product's rating
// aggregate in step with them.
package reviews

import (
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
)

const (
	MinStars = 1
	MaxStars = 5
)

type Review struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	ProductID int64     `json:"product_id"`
	Comment   string    `json:"comment"`
	Stars     int       `json:"stars"`
	CreatedAt time.Time `json:"created_at"`
}

type Input struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment" validate:"max=2000"`
}

// ValidateStars is the single bound check for a rating, on create and on edit.
func ValidateStars(stars int) error {
	if stars < MinStars || stars > MaxStars {
		return apperr.Invalid("stars", "Rating must be between 1 and 5.")
	}
	return nil
}

func (in Input) Validate() error {
	ve, _ := apperr.Struct(in).(*apperr.ValidationError)
	if err := ValidateStars(in.Stars); err != nil {
		ve = apperr.Merge(ve, err.(*apperr.ValidationError))
	}
	if ve != nil {
		return ve
	}
	return nil
}

func (in Input) normalize() Input {
	in.Comment = strings.TrimSpace(in.Comment)
	return in
}

// CanEdit is true only for the author.
func CanEdit(actor *auth.Identity, r Review) bool {
	return auth.Authenticated(actor) && actor.UserID == r.UserID
}

// CanDelete is true for the author and for staff.
func CanDelete(actor *auth.Identity, r Review) bool {
	return CanEdit(actor, r) || auth.CanAdmin(actor)
}
