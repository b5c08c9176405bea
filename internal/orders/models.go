package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/paging"
)

type Order struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Username   string          `json:"username,omitempty"`
	Items      map[int64]int   `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	FullName   string          `json:"full_name"`
	Phone      string          `json:"phone"`
	Address    string          `json:"address"`
	Note       string          `json:"note"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	Snapshots  []Snapshot      `json:"snapshots"`
}

// Snapshot freezes what a line cost at order time. It has no reference to the
// live product, so editing or deleting the product leaves it intact.
type Snapshot struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}

func (s Snapshot) Subtotal() decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrMissingAddress = errors.New("delivery address missing")
)

type Shortage struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError lists every cart line the stock could not cover.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s: requested %d, only %d available", s.Name, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

type Filter struct {
	Query  string // username substring or order id
	Status Status
	Page   paging.Params
}

type Stats struct {
	Orders       int             `json:"orders"`
	ByStatus     map[Status]int  `json:"by_status"`
	Revenue      decimal.Decimal `json:"revenue"`
	Products     int             `json:"products"`
	LowStock     int             `json:"low_stock"`
	Users        int             `json:"users"`
	Reviews      int             `json:"reviews"`
	RecentOrders []Order         `json:"recent_orders"`
}
