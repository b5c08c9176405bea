package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/postgres"
)

// RecomputeRating rewrites review_count and average_rating of one product from
// its live reviews. Callers hold the product row lock.
func RecomputeRating(ctx context.Context, q postgres.Querier, productID int64) error {
	_, err := q.Exec(ctx, `
		UPDATE products p
		SET review_count = s.n, average_rating = s.avg
		FROM (SELECT COUNT(*) AS n, COALESCE(AVG(stars), 0)::float8 AS avg
		      FROM product_reviews WHERE product_id = $1) s
		WHERE p.id = $1`, productID)
	if err != nil {
		return fmt.Errorf("recompute rating for product %d: %w", productID, err)
	}
	return nil
}

type Filter struct {
	ProductID int64
	UserID    int64
	Stars     int
	Page      paging.Params
}

type Repo struct{ DB *pgxpool.Pool }

const reviewCols = `r.id, r.user_id, u.username, r.product_id, r.comment, r.stars, r.created_at`
const reviewFrom = ` FROM product_reviews r JOIN users u ON u.id = r.user_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanReview(row scanner) (Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.UserID, &rv.Username, &rv.ProductID, &rv.Comment, &rv.Stars, &rv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Review{}, apperr.ErrNotFound
	}
	return rv, err
}

func lockProduct(ctx context.Context, tx pgx.Tx, productID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}

func (r *Repo) Create(ctx context.Context, userID, productID int64, in Input) (Review, error) {
	if err := in.Validate(); err != nil {
		return Review{}, err
	}
	in = in.normalize()
	var rv Review
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		if err := lockProduct(ctx, tx, productID); err != nil {
			return err
		}
		var id int64
		if err := tx.QueryRow(ctx, `INSERT INTO product_reviews (user_id, product_id, comment, stars)
			VALUES ($1, $2, $3, $4) RETURNING id`, userID, productID, in.Comment, in.Stars).Scan(&id); err != nil {
			return err
		}
		if err := RecomputeRating(ctx, tx, productID); err != nil {
			return err
		}
		var err error
		rv, err = scanReview(tx.QueryRow(ctx, `SELECT `+reviewCols+reviewFrom+` WHERE r.id=$1`, id))
		return err
	})
	if err != nil {
		return Review{}, err
	}
	slog.Info("review created", "review_id", rv.ID, "product_id", productID, "user_id", userID)
	return rv, nil
}

// Update lets the author change stars and comment.
func (r *Repo) Update(ctx context.Context, id int64, actor *auth.Identity, in Input) (Review, error) {
	if err := in.Validate(); err != nil {
		return Review{}, err
	}
	in = in.normalize()
	var rv Review
	err := r.withLockedReview(ctx, id, func(tx pgx.Tx, cur Review) error {
		if !CanEdit(actor, cur) {
			return apperr.ErrForbidden
		}
		if _, err := tx.Exec(ctx, `UPDATE product_reviews SET stars=$2, comment=$3 WHERE id=$1`,
			id, in.Stars, in.Comment); err != nil {
			return err
		}
		if err := RecomputeRating(ctx, tx, cur.ProductID); err != nil {
			return err
		}
		rv = cur
		rv.Stars, rv.Comment = in.Stars, in.Comment
		return nil
	})
	if err != nil {
		return Review{}, err
	}
	slog.Info("review updated", "review_id", id, "product_id", rv.ProductID)
	return rv, nil
}

// Delete is allowed for the author and for staff.
func (r *Repo) Delete(ctx context.Context, id int64, actor *auth.Identity) (Review, error) {
	var rv Review
	err := r.withLockedReview(ctx, id, func(tx pgx.Tx, cur Review) error {
		if !CanDelete(actor, cur) {
			return apperr.ErrForbidden
		}
		if _, err := tx.Exec(ctx, `DELETE FROM product_reviews WHERE id=$1`, id); err != nil {
			return err
		}
		rv = cur
		return RecomputeRating(ctx, tx, cur.ProductID)
	})
	if err != nil {
		return Review{}, err
	}
	slog.Info("review deleted", "review_id", id, "product_id", rv.ProductID)
	return rv, nil
}

// withLockedReview locks the product before the review, the same order Create uses.
func (r *Repo) withLockedReview(ctx context.Context, id int64, fn func(tx pgx.Tx, cur Review) error) error {
	return postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var productID int64
		err := tx.QueryRow(ctx, `SELECT product_id FROM product_reviews WHERE id=$1`, id).Scan(&productID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := lockProduct(ctx, tx, productID); err != nil {
			return err
		}
		cur, err := scanReview(tx.QueryRow(ctx, `SELECT `+reviewCols+reviewFrom+` WHERE r.id=$1 FOR UPDATE OF r`, id))
		if err != nil {
			return err
		}
		return fn(tx, cur)
	})
}

func (r *Repo) Get(ctx context.Context, id int64) (Review, error) {
	return scanReview(r.DB.QueryRow(ctx, `SELECT `+reviewCols+reviewFrom+` WHERE r.id=$1`, id))
}

func (r *Repo) ListForProduct(ctx context.Context, productID int64, p paging.Params) (paging.Page[Review], error) {
	return r.List(ctx, Filter{ProductID: productID, Page: p})
}

func (r *Repo) List(ctx context.Context, f Filter) (paging.Page[Review], error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.ProductID != 0 {
		where = append(where, "r.product_id = "+arg(f.ProductID))
	}
	if f.UserID != 0 {
		where = append(where, "r.user_id = "+arg(f.UserID))
	}
	if f.Stars != 0 {
		where = append(where, "r.stars = "+arg(f.Stars))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*)`+reviewFrom+cond, args...).Scan(&total); err != nil {
		return paging.Page[Review]{}, err
	}
	rows, err := r.DB.Query(ctx, `SELECT `+reviewCols+reviewFrom+cond+
		` ORDER BY r.created_at DESC, r.id DESC LIMIT `+arg(f.Page.Limit())+` OFFSET `+arg(f.Page.Offset()), args...)
	if err != nil {
		return paging.Page[Review]{}, err
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return paging.Page[Review]{}, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return paging.Page[Review]{}, err
	}
	return paging.NewPage(out, f.Page, total), nil
}
