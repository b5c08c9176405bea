package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/metrics"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/reviews"
	"github.com/ariefcatur/go-storefront/internal/session"
	"github.com/ariefcatur/go-storefront/internal/users"
)

// fakeCatalog embeds the interface so tests only implement what they call.
type fakeCatalog struct {
	CatalogStore
	products   map[int64]catalog.Product
	categories []catalog.Category
	lastFilter catalog.ProductFilter
}

func (f *fakeCatalog) Tree(context.Context) (*catalog.Tree, error) {
	return catalog.NewTree(f.categories), nil
}

func (f *fakeCatalog) ListCategories(context.Context) ([]catalog.Category, error) {
	return f.categories, nil
}

func (f *fakeCatalog) ListProducts(_ context.Context, pf catalog.ProductFilter) (paging.Page[catalog.Product], error) {
	f.lastFilter = pf
	var out []catalog.Product
	for _, p := range f.products {
		if pf.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paging.NewPage(out, pf.Page, len(out)), nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, apperr.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return catalog.Product{}, apperr.ErrNotFound
}

func (f *fakeCatalog) ProductsByIDs(_ context.Context, ids []int64) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListImages(context.Context, int64) ([]catalog.ProductImage, error) {
	return nil, nil
}

func (f *fakeCatalog) CreateCategory(_ context.Context, in catalog.CategoryInput) (catalog.Category, error) {
	if err := in.Validate(); err != nil {
		return catalog.Category{}, err
	}
	c := catalog.Category{ID: int64(len(f.categories) + 1), Name: in.Name, ParentID: in.ParentID}
	f.categories = append(f.categories, c)
	return c, nil
}

type fakeUsers struct {
	UserStore
	byID     map[int64]users.User
	password string
}

func (f *fakeUsers) Get(_ context.Context, id int64) (users.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return users.User{}, apperr.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Authenticate(_ context.Context, username, password string) (users.User, error) {
	for _, u := range f.byID {
		if u.Username == username && password == f.password && u.IsActive {
			return u, nil
		}
	}
	return users.User{}, auth.ErrBadCredentials
}

type fakeReviews struct {
	ReviewStore
	created []reviews.Review
}

func (f *fakeReviews) ListForProduct(_ context.Context, _ int64, p paging.Params) (paging.Page[reviews.Review], error) {
	return paging.NewPage(f.created, p, len(f.created)), nil
}

func (f *fakeReviews) Delete(_ context.Context, id int64, actor *auth.Identity) (reviews.Review, error) {
	for i, rv := range f.created {
		if rv.ID != id {
			continue
		}
		if !reviews.CanDelete(actor, rv) {
			return reviews.Review{}, apperr.ErrForbidden
		}
		f.created = append(f.created[:i], f.created[i+1:]...)
		return rv, nil
	}
	return reviews.Review{}, apperr.ErrNotFound
}

func (f *fakeReviews) Create(_ context.Context, userID, productID int64, in reviews.Input) (reviews.Review, error) {
	if err := in.Validate(); err != nil {
		return reviews.Review{}, err
	}
	rv := reviews.Review{ID: int64(len(f.created) + 1), UserID: userID, ProductID: productID, Stars: in.Stars, Comment: in.Comment}
	f.created = append(f.created, rv)
	return rv, nil
}

type published struct {
	topic string
	key   string
	value []byte
}

type recordingPub struct{ msgs []published }

func (p *recordingPub) Publish(topic string, key, value []byte, _ ...kafka.Header) {
	p.msgs = append(p.msgs, published{topic: topic, key: string(key), value: value})
}

type fakePlacer struct {
	err   error
	calls int
}

func (f *fakePlacer) PlaceOrder(_ context.Context, pl orders.Placement) (orders.Order, error) {
	f.calls++
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return orders.Order{
		ID: 41, UserID: pl.UserID, Items: pl.Cart, Status: orders.StatusPending,
		TotalPrice: decimal.RequireFromString("240.00"), FullName: pl.Address.FullName,
	}, nil
}

type fakeOrders struct {
	OrderStore
	byID map[int64]orders.Order
}

func (f *fakeOrders) ListForUser(_ context.Context, userID int64) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) GetForUser(_ context.Context, userID, id int64) (orders.Order, error) {
	o, ok := f.byID[id]
	if !ok || o.UserID != userID {
		return orders.Order{}, apperr.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) Stats(context.Context) (orders.Stats, error) {
	return orders.Stats{Orders: len(f.byID)}, nil
}

const (
	customerID int64 = 7
	staffID    int64 = 8
	password         = "correct-horse"
)

type harness struct {
	t       *testing.T
	router  *chi.Mux
	cookie  *http.Cookie
	catalog *fakeCatalog
	placer  *fakePlacer
	orders  *fakeOrders
	reviews *fakeReviews
	cache   *orders.StatusCache
	metrics *metrics.ServerMetrics
	events  *recordingPub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sessions := &session.Manager{Store: &session.RedisStore{RDB: rdb, TTL: time.Hour}, TTL: time.Hour}
	cat := &fakeCatalog{
		products: map[int64]catalog.Product{
			1: {ID: 1, Name: "Runner", Slug: "runner", Price: decimal.RequireFromString("80.00"), Stock: 5, IsActive: true, CategoryID: 2},
			2: {ID: 2, Name: "Retired", Slug: "retired", Price: decimal.RequireFromString("10.00"), Stock: 5},
		},
		categories: []catalog.Category{{ID: 1, Name: "Shoes"}, {ID: 2, Name: "Running", ParentID: ptr(int64(1))}},
	}
	us := &fakeUsers{password: password, byID: map[int64]users.User{
		customerID: {ID: customerID, Username: "ann", Email: "ann@example.com", IsActive: true},
		staffID:    {ID: staffID, Username: "bob", IsActive: true, IsStaff: true},
	}}
	placer := &fakePlacer{}
	ords := &fakeOrders{byID: map[int64]orders.Order{}}
	rvs := &fakeReviews{}
	cache := &orders.StatusCache{RDB: rdb}
	m := metrics.NewServerMetrics("test")
	pub := &recordingPub{}
	events := kafkax.Emitter{Pub: pub, Producer: "test"}

	checkout := &orders.Checkout{Orders: placer, Catalog: cat, Sessions: sessions, Cache: cache}
	router := NewRouter(Options{Metrics: m})
	Mount(router, Stack{
		Sessions: sessions.Middleware,
		Users:    us,
		Admin:    &AdminHandler{Catalog: cat, Orders: ords, Users: us, Reviews: rvs, Cache: cache, Events: events},
		Public: []Registrar{
			&StorefrontHandler{Catalog: cat, Reviews: rvs, Events: events},
			&CartHandler{Catalog: cat, Sessions: sessions, Checkout: checkout, Metrics: m},
			&OrdersHandler{Orders: ords, Cache: cache},
			&AuthHandler{Users: us, Sessions: sessions},
		},
	})
	return &harness{t: t, router: router, catalog: cat, placer: placer, orders: ords, reviews: rvs, cache: cache, metrics: m, events: pub}
}

func ptr[T any](v T) *T { return &v }

// do sends a request carrying the current session cookie and keeps whatever
// cookie the response sets.
func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			if c.MaxAge < 0 {
				h.cookie = nil
			} else {
				h.cookie = c
			}
		}
	}
	return rec
}

func (h *harness) login(username string) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/login", map[string]string{"username": username, "password": password})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
