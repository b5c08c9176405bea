package orders

import "github.com/ariefcatur/go-storefront/internal/apperr"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
)

// Statuses lists the enum in lifecycle order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered}

// ParseStatus accepts exactly the enum values. Any of them may be set from any
// other; staff can move an order backwards.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", apperr.Invalid("status", "Select a valid choice.")
}
