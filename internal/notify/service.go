package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

type Service struct {
	Mailer      Mailer
	Redis       redis.Cmdable
	ServiceName string
}

// HandleOrderPlaced is installed as the consumer handler for order.placed.
// Events are deduplicated by event id; the marker is written only after the
// mail went out; a returned error makes the consumer retry the same message.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		slog.Warn("skip undecodable event", "offset", m.Offset, "error", err)
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		slog.Warn("skip bad payload", "event_id", env.EventID, "error", err)
		return nil
	}
	if p.Email == "" {
		slog.Info("no email on file, skipping confirmation", "order_id", p.OrderID, "user_id", p.UserID)
	} else if err := s.Mailer.Send(ctx, OrderConfirmation(p)); err != nil {
		return fmt.Errorf("order %d confirmation: %w", p.OrderID, err)
	}

	if err := s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err(); err != nil {
		slog.Warn("dedup marker", "event_id", env.EventID, "error", err)
	}
	slog.Info("order confirmation handled", "order_id", p.OrderID, "event_id", env.EventID)
	return nil
}

// OrderConfirmation renders the customer mail for a placed order.
func OrderConfirmation(p orders.OrderPlacedPayload) Email {
	name := p.FullName
	if name == "" {
		name = p.Username
	}
	var text, rows strings.Builder
	for _, it := range p.Items {
		fmt.Fprintf(&text, "- %s x%d @ %s = %s\n", it.Name, it.Quantity, it.Price, it.Subtotal)
		fmt.Fprintf(&rows, "<li>%s &times; %d @ %s = %s</li>", html.EscapeString(it.Name), it.Quantity, it.Price, it.Subtotal)
	}
	subject := fmt.Sprintf("Order #%d confirmation", p.OrderID)
	return Email{
		To:      p.Email,
		Subject: subject,
		Text: fmt.Sprintf("Dear %s,\n\nThank you for your order #%d.\n\n%s\nTotal: %s\n\nDelivery to: %s\n",
			name, p.OrderID, text.String(), p.Total, p.Address),
		HTML: fmt.Sprintf("<p>Dear %s,</p><p>Thank you for your order #%d.</p><ul>%s</ul><p><strong>Total: %s</strong></p><p>Delivery to: %s</p>",
			html.EscapeString(name), p.OrderID, rows.String(), p.Total, html.EscapeString(p.Address)),
	}
}
