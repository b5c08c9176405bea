package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

// OrdersHandler is the customer's view of their own orders.
type OrdersHandler struct {
	Orders OrderReader
	Cache  *orders.StatusCache
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireCapability(auth.CanCheckout))
		r.Get("/orders", h.list)
		r.Get("/orders/{id}", h.get)
		r.Get("/orders/{id}/status", h.status)
	})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	mine, err := h.Orders.ListForUser(r.Context(), auth.FromContext(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if mine == nil {
		mine = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, mine)
}

// get answers 404 for orders of other users.
func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.GetForUser(r.Context(), auth.FromContext(r.Context()).UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusResp struct {
	OrderID int64         `json:"order_id"`
	Status  orders.Status `json:"status"`
	Cached  bool          `json:"cached"`
}

// status tries the Redis cache first and falls back to the database.
func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	who := auth.FromContext(ctx)

	if cs, ok := h.Cache.Get(ctx, id); ok {
		if cs.UserID != who.UserID {
			writeError(w, r, apperr.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: cs.Status, Cached: true})
		return
	}

	o, err := h.Orders.GetForUser(ctx, who.UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = h.Cache.Set(ctx, o.ID, o.UserID, o.Status)
	writeJSON(w, http.StatusOK, statusResp{OrderID: o.ID, Status: o.Status})
}
