// Package session holds the per-visitor state: who is logged in, the cart and
// the checkout address. Handlers receive it explicitly and save it after mutating.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

// Address is the delivery address captured by the first checkout step.
type Address struct {
	FullName string `json:"full_name" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"required,max=20"`
	Address  string `json:"address" validate:"required"`
	Note     string `json:"note"`
}

// Normalize trims every field.
func (a Address) Normalize() Address {
	return Address{
		FullName: strings.TrimSpace(a.FullName),
		Phone:    strings.TrimSpace(a.Phone),
		Address:  strings.TrimSpace(a.Address),
		Note:     strings.TrimSpace(a.Note),
	}
}

func (a Address) Validate() error { return apperr.Struct(a.Normalize()) }

type Session struct {
	ID      string    `json:"-"`
	UserID  *int64    `json:"user_id,omitempty"`
	Cart    cart.Cart `json:"cart"`
	Address *Address  `json:"address,omitempty"`
}

func New() *Session {
	return &Session{ID: uuid.NewString(), Cart: cart.New()}
}

func (s *Session) LoggedIn() bool { return s.UserID != nil }

type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Destroy(ctx context.Context, id string) error
}

// RedisStore keeps each session as JSON with a sliding expiry.
type RedisStore struct {
	RDB redis.Cmdable
	TTL time.Duration
}

func key(id string) string { return fmt.Sprintf(redisx.KeySession, id) }

// Load returns apperr.ErrNotFound for unknown or expired ids.
func (st *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	b, err := st.RDB.GetEx(ctx, key(id), st.TTL).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s := &Session{}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.ID = id
	if s.Cart == nil {
		s.Cart = cart.New()
	}
	return s, nil
}

func (st *RedisStore) Save(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := st.RDB.Set(ctx, key(s.ID), b, st.TTL).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (st *RedisStore) Destroy(ctx context.Context, id string) error {
	return st.RDB.Del(ctx, key(id)).Err()
}
