package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/session"
)

type Repo struct{ DB *pgxpool.Pool }

// Placement is everything PlaceOrder needs from the caller's session.
type Placement struct {
	UserID  int64
	Cart    cart.Cart
	Address session.Address
}

type lockedLine struct {
	product  catalog.Product
	quantity int
}

// PlaceOrder reserves stock and records the order in one transaction.
//
// The referenced product rows are locked in ascending id order, so two
// checkouts sharing products queue up instead of deadlocking. If any line is
// short nothing is written and an *InsufficientStockError names every short line.
// Products deleted since they were added to the cart are left out.
func (r *Repo) PlaceOrder(ctx context.Context, pl Placement) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lines, err := lockLines(ctx, tx, pl.Cart)
	if err != nil {
		return Order{}, err
	}
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}

	var short []Shortage
	for _, l := range lines {
		if l.product.Stock < l.quantity {
			short = append(short, Shortage{
				ProductID: l.product.ID, Name: l.product.Name, Requested: l.quantity, Available: l.product.Stock,
			})
		}
	}
	if len(short) > 0 {
		return Order{}, &InsufficientStockError{Shortages: short} // rollback via defer
	}

	o := Order{
		UserID:     pl.UserID,
		Items:      make(map[int64]int, len(lines)),
		TotalPrice: decimal.Zero,
		FullName:   pl.Address.FullName,
		Phone:      pl.Address.Phone,
		Address:    pl.Address.Address,
		Note:       pl.Address.Note,
		Status:     StatusPending,
	}
	for _, l := range lines {
		o.Items[l.product.ID] = l.quantity
		o.TotalPrice = o.TotalPrice.Add(l.product.EffectivePrice().Mul(decimal.NewFromInt(int64(l.quantity))))
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, items, total_price, full_name, phone, address, note, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		o.UserID, o.Items, o.TotalPrice, o.FullName, o.Phone, o.Address, o.Note, o.Status,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	b := &pgx.Batch{}
	for _, l := range lines {
		b.Queue(`UPDATE products SET stock = stock - $2 WHERE id = $1`, l.product.ID, l.quantity)
		b.Queue(`
			WITH s AS (
				INSERT INTO order_item_snapshots (product_id, product_name, product_image, price, quantity)
				VALUES ($2, $3, $4, $5, $6)
				RETURNING id
			)
			INSERT INTO order_snapshots (order_id, snapshot_id) SELECT $1, id FROM s
			RETURNING snapshot_id`,
			o.ID, l.product.ID, l.product.Name, l.product.ImageURL, l.product.EffectivePrice(), l.quantity)
	}
	br := tx.SendBatch(ctx, b)
	for _, l := range lines {
		ct, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return Order{}, fmt.Errorf("decrement stock of product %d: %w", l.product.ID, err)
		}
		if ct.RowsAffected() != 1 {
			_ = br.Close()
			return Order{}, fmt.Errorf("decrement stock of product %d: row vanished", l.product.ID)
		}
		snap := Snapshot{
			ProductID:    l.product.ID,
			ProductName:  l.product.Name,
			ProductImage: l.product.ImageURL,
			Price:        l.product.EffectivePrice(),
			Quantity:     l.quantity,
		}
		if err := br.QueryRow().Scan(&snap.ID); err != nil {
			_ = br.Close()
			return Order{}, fmt.Errorf("snapshot product %d: %w", l.product.ID, err)
		}
		o.Snapshots = append(o.Snapshots, snap)
	}
	if err := br.Close(); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func lockLines(ctx context.Context, tx pgx.Tx, c cart.Cart) ([]lockedLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, name, image_url, price, discount_price, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, c.IDs())
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	var out []lockedLine
	for rows.Next() {
		var (
			p        catalog.Product
			discount decimal.NullDecimal
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.ImageURL, &p.Price, &discount, &p.Stock); err != nil {
			return nil, err
		}
		if discount.Valid {
			d := discount.Decimal
			p.DiscountPrice = &d
		}
		if q := c.Quantity(p.ID); q > 0 {
			out = append(out, lockedLine{product: p, quantity: q})
		}
	}
	return out, rows.Err()
}

const orderCols = `o.id, o.user_id, u.username, o.items, o.total_price, o.full_name, o.phone, o.address,
	o.note, o.status, o.created_at`
const orderFrom = ` FROM orders o JOIN users u ON u.id = o.user_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Username, &o.Items, &o.TotalPrice, &o.FullName, &o.Phone,
		&o.Address, &o.Note, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.ErrNotFound
	}
	return o, err
}

func (r *Repo) queryOrders(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, r.attachSnapshots(ctx, out)
}

func (r *Repo) attachSnapshots(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	pos := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		pos[o.ID] = i
		orders[i].Snapshots = []Snapshot{}
	}
	rows, err := r.DB.Query(ctx, `
		SELECT os.order_id, s.id, s.product_id, s.product_name, s.product_image, s.price, s.quantity
		FROM order_snapshots os
		JOIN order_item_snapshots s ON s.id = os.snapshot_id
		WHERE os.order_id = ANY($1)
		ORDER BY s.id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			s       Snapshot
		)
		if err := rows.Scan(&orderID, &s.ID, &s.ProductID, &s.ProductName, &s.ProductImage, &s.Price, &s.Quantity); err != nil {
			return err
		}
		i := pos[orderID]
		orders[i].Snapshots = append(orders[i].Snapshots, s)
	}
	return rows.Err()
}

func (r *Repo) one(ctx context.Context, sql string, args ...any) (Order, error) {
	list, err := r.queryOrders(ctx, sql, args...)
	if err != nil {
		return Order{}, err
	}
	if len(list) == 0 {
		return Order{}, apperr.ErrNotFound
	}
	return list[0], nil
}

// ListForUser is the customer's order history, newest first.
func (r *Repo) ListForUser(ctx context.Context, userID int64) ([]Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderCols+orderFrom+` WHERE o.user_id=$1 ORDER BY o.created_at DESC, o.id DESC`, userID)
}

// GetForUser hides other customers' orders behind apperr.ErrNotFound.
func (r *Repo) GetForUser(ctx context.Context, userID, orderID int64) (Order, error) {
	return r.one(ctx, `SELECT `+orderCols+orderFrom+` WHERE o.id=$1 AND o.user_id=$2`, orderID, userID)
}

func (r *Repo) Get(ctx context.Context, orderID int64) (Order, error) {
	return r.one(ctx, `SELECT `+orderCols+orderFrom+` WHERE o.id=$1`, orderID)
}

func (r *Repo) List(ctx context.Context, f Filter) (paging.Page[Order], error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		n := arg("%" + q + "%")
		where = append(where, fmt.Sprintf("(u.username ILIKE %[1]s OR o.id::text ILIKE %[1]s)", n))
	}
	if f.Status != "" {
		where = append(where, "o.status = "+arg(f.Status))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*)`+orderFrom+cond, args...).Scan(&total); err != nil {
		return paging.Page[Order]{}, err
	}
	items, err := r.queryOrders(ctx, `SELECT `+orderCols+orderFrom+cond+
		` ORDER BY o.created_at DESC, o.id DESC LIMIT `+arg(f.Page.Limit())+` OFFSET `+arg(f.Page.Offset()), args...)
	if err != nil {
		return paging.Page[Order]{}, err
	}
	return paging.NewPage(items, f.Page, total), nil
}

// UpdateStatus sets any enum value and returns the previous one; items and total never change.
func (r *Repo) UpdateStatus(ctx context.Context, orderID int64, st Status) (Status, error) {
	var prev Status
	err := r.DB.QueryRow(ctx, `
		UPDATE orders o SET status = $2
		FROM (SELECT id, status FROM orders WHERE id = $1 FOR UPDATE) prev
		WHERE o.id = prev.id
		RETURNING prev.status`, orderID, st).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	return prev, err
}

// Delete removes the order together with its snapshots.
func (r *Repo) Delete(ctx context.Context, orderID int64) error {
	return postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT snapshot_id FROM order_snapshots WHERE order_id=$1`, orderID)
		if err != nil {
			return err
		}
		snapIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, orderID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return apperr.ErrNotFound
		}
		_, err = tx.Exec(ctx, `DELETE FROM order_item_snapshots WHERE id = ANY($1)`, snapIDs)
		return err
	})
}

// LowStockThreshold marks products the dashboard flags for restocking.
const LowStockThreshold = 5

func (r *Repo) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByStatus: make(map[Status]int, len(Statuses))}
	for _, s := range Statuses {
		st.ByStatus[s] = 0
	}

	rows, err := r.DB.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(total_price), 0) FROM orders GROUP BY status`)
	if err != nil {
		return Stats{}, err
	}
	st.Revenue = decimal.Zero
	for rows.Next() {
		var (
			s   Status
			n   int
			sum decimal.Decimal
		)
		if err := rows.Scan(&s, &n, &sum); err != nil {
			rows.Close()
			return Stats{}, err
		}
		st.ByStatus[s] = n
		st.Orders += n
		st.Revenue = st.Revenue.Add(sum)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	err = r.DB.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM products),
		       (SELECT COUNT(*) FROM products WHERE stock <= $1),
		       (SELECT COUNT(*) FROM users),
		       (SELECT COUNT(*) FROM product_reviews)`, LowStockThreshold).
		Scan(&st.Products, &st.LowStock, &st.Users, &st.Reviews)
	if err != nil {
		return Stats{}, err
	}

	st.RecentOrders, err = r.queryOrders(ctx, `SELECT `+orderCols+orderFrom+` ORDER BY o.created_at DESC, o.id DESC LIMIT 5`)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}
