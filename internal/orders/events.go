package orders

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"

	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// PartitionKey = order id, so every event of one order stays in order.
func PartitionKey(orderID int64) string { return itoa(orderID) }

type PlacedItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type OrderPlacedPayload struct {
	OrderID  int64        `json:"order_id"`
	UserID   int64        `json:"user_id"`
	Username string       `json:"username"`
	Email    string       `json:"email,omitempty"`
	FullName string       `json:"full_name"`
	Phone    string       `json:"phone"`
	Address  string       `json:"address"`
	Total    string       `json:"total"`
	Items    []PlacedItem `json:"items"`
}

type StatusChangedPayload struct {
	OrderID int64  `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

func placedPayload(o Order, username, email string) OrderPlacedPayload {
	p := OrderPlacedPayload{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Username: username,
		Email:    email,
		FullName: o.FullName,
		Phone:    o.Phone,
		Address:  o.Address,
		Total:    o.TotalPrice.StringFixed(2),
		Items:    make([]PlacedItem, 0, len(o.Snapshots)),
	}
	for _, s := range o.Snapshots {
		p.Items = append(p.Items, PlacedItem{
			ProductID: s.ProductID, Name: s.ProductName, Price: s.Price.StringFixed(2), Quantity: s.Quantity,
			Subtotal: s.Subtotal().StringFixed(2),
		})
	}
	return p
}
