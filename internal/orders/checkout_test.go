package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/session"
)

type fakePlacer struct {
	got   Placement
	order Order
	err   error
}

func (f *fakePlacer) PlaceOrder(_ context.Context, pl Placement) (Order, error) {
	f.got = pl
	if f.err != nil {
		return Order{}, f.err
	}
	o := f.order
	o.UserID = pl.UserID
	return o, nil
}

type fakeLookup map[int64]catalog.Product

func (f fakeLookup) ProductsByIDs(_ context.Context, ids []int64) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type countingSaver struct{ saved int }

func (c *countingSaver) Save(context.Context, *session.Session) error { c.saved++; return nil }

type recordingPub struct{ topics []string }

func (r *recordingPub) Publish(topic string, _, _ []byte, _ ...kafka.Header) {
	r.topics = append(r.topics, topic)
}

type recordingFeed struct{ events []string }

func (r *recordingFeed) Broadcast(event string, _ any) { r.events = append(r.events, event) }

type fixture struct {
	co     *Checkout
	placer *fakePlacer
	saver  *countingSaver
	pub    *recordingPub
	feed   *recordingFeed
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	discount := decimal.RequireFromString("80")
	f := &fixture{
		placer: &fakePlacer{order: Order{ID: 11, TotalPrice: decimal.RequireFromString("240"), Status: StatusPending,
			Snapshots: []Snapshot{{ProductID: 1, ProductName: "Runner", Price: discount, Quantity: 3}}}},
		saver: &countingSaver{},
		pub:   &recordingPub{},
		feed:  &recordingFeed{},
		mr:    mr,
	}
	f.co = &Checkout{
		Orders:   f.placer,
		Catalog:  fakeLookup{1: {ID: 1, Name: "Runner", Price: decimal.RequireFromString("100"), DiscountPrice: &discount, Stock: 5}},
		Sessions: f.saver,
		Cache:    &StatusCache{RDB: rdb},
		Events:   kafkax.Emitter{Pub: f.pub, Producer: "test"},
		Feed:     f.feed,
	}
	return f
}

func sessionWithCart(qty int) *session.Session {
	s := session.New()
	for i := 0; i < qty; i++ {
		s.Cart.Add(1)
	}
	return s
}

var customer = &auth.Identity{UserID: 5, Username: "ann", Email: "ann@example.com", IsActive: true}

var validAddress = session.Address{FullName: " Ann ", Phone: "123", Address: "Main St 1"}

func TestSubmitAddress(t *testing.T) {
	f := newFixture(t)

	err := f.co.SubmitAddress(context.Background(), session.New(), validAddress)
	assert.ErrorIs(t, err, ErrEmptyCart)

	s := sessionWithCart(1)
	err = f.co.SubmitAddress(context.Background(), s, session.Address{FullName: "Ann"})
	assert.True(t, apperr.IsValidation(err))
	assert.Nil(t, s.Address)
	assert.Equal(t, 0, f.saver.saved)

	require.NoError(t, f.co.SubmitAddress(context.Background(), s, validAddress))
	require.NotNil(t, s.Address)
	assert.Equal(t, "Ann", s.Address.FullName)
	assert.Equal(t, 1, f.saver.saved)
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	s := sessionWithCart(3)

	_, err := f.co.Preview(context.Background(), s)
	assert.ErrorIs(t, err, ErrMissingAddress)

	require.NoError(t, f.co.SubmitAddress(context.Background(), s, validAddress))
	p, err := f.co.Preview(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("240").Equal(p.Cart.Total))
	assert.Equal(t, "Main St 1", p.Address.Address)
}

func TestConfirmGuards(t *testing.T) {
	f := newFixture(t)
	s := sessionWithCart(1)

	_, err := f.co.Confirm(context.Background(), s, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.co.Confirm(context.Background(), s, customer)
	assert.ErrorIs(t, err, ErrMissingAddress)

	_, err = f.co.Confirm(context.Background(), session.New(), customer)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestConfirmSuccessClearsSession(t *testing.T) {
	f := newFixture(t)
	s := sessionWithCart(3)
	require.NoError(t, f.co.SubmitAddress(context.Background(), s, validAddress))

	o, err := f.co.Confirm(context.Background(), s, customer)
	require.NoError(t, err)
	assert.Equal(t, int64(11), o.ID)
	assert.Equal(t, int64(5), f.placer.got.UserID)
	assert.Equal(t, 3, f.placer.got.Cart.Quantity(1))

	assert.True(t, s.Cart.IsEmpty())
	assert.Nil(t, s.Address)
	assert.Equal(t, 2, f.saver.saved)
	assert.Equal(t, 3, f.placer.got.Cart.Quantity(1), "placement keeps its own copy of the cart")

	assert.Equal(t, []string{TopicOrderPlaced}, f.pub.topics)
	assert.Equal(t, []string{EventOrderPlaced}, f.feed.events)

	cs, ok := f.co.Cache.Get(context.Background(), 11)
	require.True(t, ok)
	assert.Equal(t, StatusPending, cs.Status)
	assert.Equal(t, int64(5), cs.UserID)
	assert.Equal(t, 5*time.Minute, f.mr.TTL("order_status:11"))
}

func TestConfirmInsufficientStockKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.placer.err = &InsufficientStockError{Shortages: []Shortage{{ProductID: 1, Name: "Runner", Requested: 9, Available: 5}}}
	s := sessionWithCart(9)
	require.NoError(t, f.co.SubmitAddress(context.Background(), s, validAddress))

	_, err := f.co.Confirm(context.Background(), s, customer)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 5, short.Shortages[0].Available)
	assert.Contains(t, err.Error(), "Runner: requested 9, only 5 available")

	assert.Equal(t, 9, s.Cart.Quantity(1))
	assert.NotNil(t, s.Address)
	assert.Empty(t, f.pub.topics)
	assert.Empty(t, f.feed.events)
}

func TestConfirmPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.placer.err = errors.New("connection reset")
	s := sessionWithCart(1)
	require.NoError(t, f.co.SubmitAddress(context.Background(), s, validAddress))

	_, err := f.co.Confirm(context.Background(), s, customer)
	assert.EqualError(t, err, "connection reset")
	assert.False(t, s.Cart.IsEmpty())
}

type fakeStatusStore struct {
	order Order
	prev  Status
}

func (f *fakeStatusStore) UpdateStatus(_ context.Context, id int64, st Status) (Status, error) {
	if id != f.order.ID {
		return "", apperr.ErrNotFound
	}
	prev := f.order.Status
	f.order.Status = st
	f.prev = prev
	return prev, nil
}

func (f *fakeStatusStore) Get(_ context.Context, id int64) (Order, error) {
	if id != f.order.ID {
		return Order{}, apperr.ErrNotFound
	}
	return f.order, nil
}

func TestAdminChangeStatusAllowsRegression(t *testing.T) {
	store := &fakeStatusStore{order: Order{ID: 3, UserID: 5, Status: StatusDelivered}}
	pub := &recordingPub{}
	a := &Admin{Orders: store, Events: kafkax.Emitter{Pub: pub}}

	o, err := a.ChangeStatus(context.Background(), 3, "pending")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, StatusDelivered, store.prev)
	assert.Equal(t, []string{TopicOrderStatusChanged}, pub.topics)

	_, err = a.ChangeStatus(context.Background(), 3, "cancelled")
	assert.True(t, apperr.IsValidation(err))

	_, err = a.ChangeStatus(context.Background(), 99, "shipped")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestParseStatus(t *testing.T) {
	for _, st := range Statuses {
		got, err := ParseStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseStatus("PENDING")
	assert.True(t, apperr.IsValidation(err))
}

func TestPlacedPayloadCarriesLineSubtotals(t *testing.T) {
	o := Order{
		ID: 3, UserID: 7, TotalPrice: decimal.RequireFromString("259.50"),
		Snapshots: []Snapshot{
			{ProductID: 1, ProductName: "Runner", Price: decimal.RequireFromString("80"), Quantity: 3},
			{ProductID: 2, ProductName: "Socks", Price: decimal.RequireFromString("19.5"), Quantity: 1},
		},
	}
	p := placedPayload(o, "ann", "ann@example.com")
	require.Len(t, p.Items, 2)
	assert.Equal(t, PlacedItem{ProductID: 1, Name: "Runner", Price: "80.00", Quantity: 3, Subtotal: "240.00"}, p.Items[0])
	assert.Equal(t, "19.50", p.Items[1].Subtotal)
	assert.Equal(t, "259.50", p.Total)
}
