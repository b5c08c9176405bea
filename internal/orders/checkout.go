package orders

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/cart"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/session"
)

// Placer is the transactional step of checkout.
type Placer interface {
	PlaceOrder(ctx context.Context, pl Placement) (Order, error)
}

type SessionSaver interface {
	Save(ctx context.Context, s *session.Session) error
}

// Broadcaster pushes live events to connected staff.
type Broadcaster interface {
	Broadcast(event string, v any)
}

// Checkout runs the two-step address/confirm flow against an explicit session.
type Checkout struct {
	Orders   Placer
	Catalog  cart.Lookup
	Sessions SessionSaver
	Cache    *StatusCache
	Events   kafkax.Emitter
	Feed     Broadcaster
}

// Preview is what the confirmation step shows before the order is placed.
type Preview struct {
	Cart    cart.View       `json:"cart"`
	Address session.Address `json:"address"`
}

// SubmitAddress validates the delivery address and stashes it in the session.
func (c *Checkout) SubmitAddress(ctx context.Context, s *session.Session, a session.Address) error {
	if s.Cart.IsEmpty() {
		return ErrEmptyCart
	}
	if err := a.Validate(); err != nil {
		return err
	}
	a = a.Normalize()
	s.Address = &a
	return c.Sessions.Save(ctx, s)
}

func (c *Checkout) Preview(ctx context.Context, s *session.Session) (Preview, error) {
	if s.Cart.IsEmpty() {
		return Preview{}, ErrEmptyCart
	}
	if s.Address == nil {
		return Preview{}, ErrMissingAddress
	}
	v, err := s.Cart.View(ctx, c.Catalog)
	if err != nil {
		return Preview{}, err
	}
	return Preview{Cart: v, Address: *s.Address}, nil
}

// Confirm places the order. On success the cart and address are cleared from
// the session. Insufficient stock comes back as *InsufficientStockError and
// leaves the session untouched so the caller can adjust and retry.
func (c *Checkout) Confirm(ctx context.Context, s *session.Session, who *auth.Identity) (Order, error) {
	if !auth.CanCheckout(who) {
		return Order{}, apperr.ErrUnauthorized
	}
	if s.Cart.IsEmpty() {
		return Order{}, ErrEmptyCart
	}
	if s.Address == nil {
		return Order{}, ErrMissingAddress
	}

	o, err := c.Orders.PlaceOrder(ctx, Placement{UserID: who.UserID, Cart: s.Cart.Clone(), Address: *s.Address})
	if err != nil {
		var short *InsufficientStockError
		if !errors.As(err, &short) && !errors.Is(err, ErrEmptyCart) {
			slog.Error("place order failed", "user_id", who.UserID, "error", err)
		}
		return Order{}, err
	}
	o.Username = who.Username
	slog.Info("order placed", "order_id", o.ID, "user_id", o.UserID, "total", o.TotalPrice.StringFixed(2))

	// The order is committed; nothing below may undo it.
	s.Cart.Clear()
	s.Address = nil
	if err := c.Sessions.Save(ctx, s); err != nil {
		slog.Error("clear session after order", "order_id", o.ID, "error", err)
	}
	if err := c.Cache.Set(ctx, o.ID, o.UserID, o.Status); err != nil {
		slog.Warn("cache order status", "order_id", o.ID, "error", err)
	}
	c.Events.Emit(ctx, TopicOrderPlaced, EventOrderPlaced, PartitionKey(o.ID), placedPayload(o, who.Username, who.Email))
	if c.Feed != nil {
		c.Feed.Broadcast(EventOrderPlaced, o)
	}
	return o, nil
}

// StatusStore is the admin side of the order repo.
type StatusStore interface {
	UpdateStatus(ctx context.Context, orderID int64, st Status) (Status, error)
	Get(ctx context.Context, orderID int64) (Order, error)
}

// Admin applies staff changes to orders and fans them out.
type Admin struct {
	Orders StatusStore
	Cache  *StatusCache
	Events kafkax.Emitter
	Feed   Broadcaster
}

// ChangeStatus accepts any enum value, including a move backwards.
func (a *Admin) ChangeStatus(ctx context.Context, orderID int64, raw string) (Order, error) {
	st, err := ParseStatus(raw)
	if err != nil {
		return Order{}, err
	}
	prev, err := a.Orders.UpdateStatus(ctx, orderID, st)
	if err != nil {
		return Order{}, err
	}
	o, err := a.Orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	slog.Info("order status changed", "order_id", orderID, "from", prev, "to", st)

	if err := a.Cache.Set(ctx, o.ID, o.UserID, st); err != nil {
		slog.Warn("cache order status", "order_id", o.ID, "error", err)
	}
	a.Events.Emit(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, PartitionKey(o.ID),
		StatusChangedPayload{OrderID: o.ID, From: prev, To: st})
	if a.Feed != nil {
		a.Feed.Broadcast(EventOrderStatusChanged, StatusChangedPayload{OrderID: o.ID, From: prev, To: st})
	}
	return o, nil
}
