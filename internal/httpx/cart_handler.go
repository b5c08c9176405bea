package httpx

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/metrics"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/session"
)

// CartHandler serves the session cart and the two-step checkout.
type CartHandler struct {
	Catalog  CatalogReader
	Sessions SessionManager
	Checkout Checkout
	Metrics  *metrics.ServerMetrics
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.view)
	r.Post("/cart/items/{id}", h.add)
	r.Delete("/cart/items/{id}", h.remove)

	r.Group(func(r chi.Router) {
		r.Use(RequireCapability(auth.CanCheckout))
		r.Post("/checkout/address", h.submitAddress)
		r.Get("/checkout/confirm", h.preview)
		r.Post("/checkout/confirm", h.confirm)
	})
}

func (h *CartHandler) view(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	v, err := s.Cart.View(r.Context(), h.Catalog)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// add puts one more unit of an active product into the cart.
func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.GetProduct(r.Context(), id)
	if err == nil && !p.IsActive {
		err = apperr.ErrNotFound
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s := session.FromContext(r.Context())
	s.Cart.Add(p.ID)
	h.saveAndView(w, r, s)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s := session.FromContext(r.Context())
	s.Cart.Remove(id)
	h.saveAndView(w, r, s)
}

func (h *CartHandler) saveAndView(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if err := h.Sessions.Save(r.Context(), s); err != nil {
		writeError(w, r, err)
		return
	}
	h.view(w, r)
}

func (h *CartHandler) submitAddress(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if s.Cart.IsEmpty() {
		seeOther(w, r, "/cart")
		return
	}
	var a session.Address
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Checkout.SubmitAddress(r.Context(), s, a); err != nil {
		writeError(w, r, err)
		return
	}
	seeOther(w, r, "/checkout/confirm")
}

func (h *CartHandler) preview(w http.ResponseWriter, r *http.Request) {
	p, err := h.Checkout.Preview(r.Context(), session.FromContext(r.Context()))
	if h.redirectIncomplete(w, r, err) {
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// confirm places the order. A stock shortage answers 409 with the shortages
// and a fresh preview so the customer can adjust the cart.
func (h *CartHandler) confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	o, err := h.Checkout.Confirm(ctx, s, auth.FromContext(ctx))
	if h.redirectIncomplete(w, r, err) {
		return
	}
	var short *orders.InsufficientStockError
	switch {
	case errors.As(err, &short):
		h.count("insufficient_stock")
		body := errorBody{Error: short.Error(), Shortages: short.Shortages}
		if p, perr := h.Checkout.Preview(ctx, s); perr == nil {
			body.Preview = &p
		}
		writeJSON(w, http.StatusConflict, body)
	case err != nil:
		h.count("error")
		writeError(w, r, err)
	default:
		h.count("placed")
		writeJSON(w, http.StatusCreated, o)
	}
}

// redirectIncomplete sends the customer back to the step they skipped.
func (h *CartHandler) redirectIncomplete(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, orders.ErrEmptyCart):
		seeOther(w, r, "/cart")
	case errors.Is(err, orders.ErrMissingAddress):
		seeOther(w, r, "/checkout/address")
	default:
		return false
	}
	return true
}

func (h *CartHandler) count(outcome string) {
	if h.Metrics != nil {
		h.Metrics.Checkouts.WithLabelValues(outcome).Inc()
	}
}
