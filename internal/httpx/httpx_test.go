package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/reviews"
)

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = h.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_test_http_requests_total")
}

func TestCartAddViewRemove(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/cart/items/1", nil).Code)
	rec := h.do(http.MethodPost, "/cart/items/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[cart.View](t, rec)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, 2, v.Lines[0].Quantity)
	assert.Equal(t, "160", v.Total.String())

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/cart/items/2", nil).Code, "inactive product")
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/cart/items/99", nil).Code, "unknown product")
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/cart/items/abc", nil).Code)

	rec = h.do(http.MethodDelete, "/cart/items/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cart.View](t, rec).Lines)
}

func TestCheckoutRequiresLogin(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/cart/items/1", nil)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/checkout/address", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/checkout/confirm", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/orders", nil).Code)
}

func TestCheckoutFlow(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/cart/items/1", nil)
	h.login("ann")

	rec := h.do(http.MethodGet, "/checkout/confirm", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/checkout/address", rec.Header().Get("Location"))

	rec = h.do(http.MethodPost, "/checkout/address", map[string]string{"phone": "123"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Contains(t, body.Fields, "full_name")
	assert.Contains(t, body.Fields, "address")

	rec = h.do(http.MethodPost, "/checkout/address", map[string]string{
		"full_name": " Ann Example ", "phone": "555-0100", "address": "Main St 1",
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/checkout/confirm", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/checkout/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[orders.Preview](t, rec)
	assert.Equal(t, "Ann Example", p.Address.FullName)
	assert.Equal(t, 1, p.Cart.Count)

	rec = h.do(http.MethodPost, "/checkout/confirm", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[orders.Order](t, rec)
	assert.Equal(t, int64(41), o.ID)
	assert.Equal(t, customerID, o.UserID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Checkouts.WithLabelValues("placed")))

	// The session cart is gone, so a second confirm goes back to the cart.
	rec = h.do(http.MethodPost, "/checkout/confirm", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	assert.Equal(t, 1, h.placer.calls)

	cs, ok := h.cache.Get(context.Background(), 41)
	require.True(t, ok)
	assert.Equal(t, customerID, cs.UserID)
}

func TestAddressWithEmptyCartRedirects(t *testing.T) {
	h := newHarness(t)
	h.login("ann")

	rec := h.do(http.MethodPost, "/checkout/address", map[string]string{"full_name": "Ann"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))
}

func TestConfirmInsufficientStock(t *testing.T) {
	h := newHarness(t)
	h.placer.err = &orders.InsufficientStockError{Shortages: []orders.Shortage{
		{ProductID: 1, Name: "Runner", Requested: 3, Available: 1},
	}}
	h.login("ann")
	for range 3 {
		h.do(http.MethodPost, "/cart/items/1", nil)
	}
	h.do(http.MethodPost, "/checkout/address", map[string]string{
		"full_name": "Ann", "phone": "1", "address": "Main St 1",
	})

	rec := h.do(http.MethodPost, "/checkout/confirm", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	require.Len(t, body.Shortages, 1)
	assert.Equal(t, 1, body.Shortages[0].Available)
	require.NotNil(t, body.Preview)
	assert.Equal(t, 3, body.Preview.Cart.Count, "cart is kept for the retry")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Checkouts.WithLabelValues("insufficient_stock")))
}

func TestLoginLogout(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/me", nil).Code)
	rec := h.do(http.MethodPost, "/login", map[string]string{"username": "ann", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	h.do(http.MethodPost, "/cart/items/1", nil)
	anonCookie := h.cookie.Value
	h.login("ann")
	assert.NotEqual(t, anonCookie, h.cookie.Value, "session id rotates on login")

	rec = h.do(http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ann", decode[auth.Identity](t, rec).Username)

	rec = h.do(http.MethodGet, "/cart", nil)
	assert.Equal(t, 1, decode[cart.View](t, rec).Count, "anonymous cart survives login")

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/me", nil).Code)
}

func TestAdminRequiresStaff(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/admin/stats", nil).Code)

	h.login("ann")
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/admin/stats", nil).Code)

	h.login("bob")
	rec := h.do(http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[orders.Stats](t, rec).Orders)
}

func TestAdminCategoryAndProductList(t *testing.T) {
	h := newHarness(t)
	h.login("bob")

	rec := h.do(http.MethodPost, "/admin/categories", map[string]any{"name": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This field is required.", decode[errorBody](t, rec).Fields["name"])

	rec = h.do(http.MethodPost, "/admin/categories", map[string]any{"name": "Boots", "parent_id": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Boots", decode[catalog.Category](t, rec).Name)

	rec = h.do(http.MethodGet, "/admin/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[paging.Page[catalog.Product]](t, rec).Total, "admin sees inactive products")
	assert.Equal(t, catalog.SortNewest, h.catalog.lastFilter.Sort)

	rec = h.do(http.MethodGet, "/admin/orders?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorefrontCatalog(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/products?category=1&q=run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[paging.Page[catalog.Product]](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.True(t, h.catalog.lastFilter.IncludeDescendants)
	assert.Equal(t, int64(1), h.catalog.lastFilter.CategoryID)
	assert.Equal(t, "run", h.catalog.lastFilter.Query)
	assert.Equal(t, catalog.SortRating, h.catalog.lastFilter.Sort)

	rec = h.do(http.MethodGet, "/products/runner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[productDetail](t, rec)
	assert.Equal(t, "80.00", d.EffectivePrice)
	require.Len(t, d.Category, 2)
	assert.Equal(t, "Shoes", d.Category[0].Name)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/products/retired", nil).Code)

	rec = h.do(http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nodes := decode[[]categoryNode](t, rec)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Children, 1)
	assert.Equal(t, "Running", nodes[0].Children[0].Name)
}

func TestCreateReview(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/products/1/reviews", map[string]any{"stars": 5}).Code)

	h.login("ann")
	rec := h.do(http.MethodPost, "/products/1/reviews", map[string]any{"stars": 6})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Rating must be between 1 and 5.", decode[errorBody](t, rec).Fields["stars"])

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/products/2/reviews", map[string]any{"stars": 4}).Code)

	rec = h.do(http.MethodPost, "/products/1/reviews", map[string]any{"stars": 4, "comment": "Comfy"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, h.reviews.created, 1)
	assert.Equal(t, customerID, h.reviews.created[0].UserID)
}

func TestStaffReviewDeleteEmitsEvent(t *testing.T) {
	h := newHarness(t)
	h.login("ann")
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/products/1/reviews", map[string]any{"stars": 4}).Code)
	require.Len(t, h.events.msgs, 1)

	h.login("bob")
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/admin/reviews/9", nil).Code)
	require.Len(t, h.events.msgs, 1)
	require.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/admin/reviews/1", nil).Code)
	assert.Empty(t, h.reviews.created)

	require.Len(t, h.events.msgs, 2)
	msg := h.events.msgs[1]
	assert.Equal(t, reviews.TopicReviewWritten, msg.topic)
	assert.Equal(t, "1", msg.key)
	env, err := kafkax.UnmarshalEnvelope(msg.value)
	require.NoError(t, err)
	assert.Equal(t, reviews.EventReviewWritten, env.EventType)
	p, err := kafkax.UnwrapPayload[reviews.WrittenPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, reviews.ActionDeleted, p.Action)
	assert.Equal(t, customerID, p.UserID)
	assert.Equal(t, 4, p.Stars)
}

func TestOrderStatusUsesCacheOwnership(t *testing.T) {
	h := newHarness(t)
	h.orders.byID[5] = orders.Order{ID: 5, UserID: customerID, Status: orders.StatusShipped}
	require.NoError(t, h.cache.Set(context.Background(), 6, staffID, orders.StatusPending))
	h.login("ann")

	rec := h.do(http.MethodGet, "/orders/5/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[statusResp](t, rec)
	assert.Equal(t, orders.StatusShipped, st.Status)
	assert.False(t, st.Cached)

	rec = h.do(http.MethodGet, "/orders/5/status", nil)
	assert.True(t, decode[statusResp](t, rec).Cached)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/orders/6/status", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/orders/6", nil).Code)
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.Invalid("name", "bad"), http.StatusBadRequest},
		{fmt.Errorf("get: %w", apperr.ErrNotFound), http.StatusNotFound},
		{apperr.ErrConflict, http.StatusConflict},
		{&orders.InsufficientStockError{}, http.StatusConflict},
		{orders.ErrEmptyCart, http.StatusBadRequest},
		{auth.ErrBadCredentials, http.StatusUnauthorized},
		{apperr.ErrUnauthorized, http.StatusUnauthorized},
		{apperr.ErrForbidden, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret detail"))
	assert.NotContains(t, rec.Body.String(), "secret")
}
