package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/reviews"
)

type Filter struct {
	Query  string
	Staff  *bool
	Active *bool
	Page   paging.Params
}

type Repo struct{ DB *pgxpool.Pool }

const userCols = `id, username, email, first_name, last_name, phone, profile_picture, password_hash,
	is_active, is_staff, is_superuser, date_joined`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.ProfilePicture,
		&u.PasswordHash, &u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.DateJoined)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.ErrNotFound
	}
	return u, err
}

func (r *Repo) Create(ctx context.Context, in NewUser) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	u, err := scanUser(r.DB.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userCols,
		strings.TrimSpace(in.Username), strings.TrimSpace(in.Email), hash, in.IsStaff, in.IsSuperuser))
	if postgres.IsUniqueViolation(err) {
		return User{}, fmt.Errorf("username %q: %w", in.Username, apperr.ErrConflict)
	}
	return u, err
}

func (r *Repo) Get(ctx context.Context, id int64) (User, error) {
	return scanUser(r.DB.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(r.DB.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username=$1`, username))
}

// Authenticate returns auth.ErrBadCredentials for unknown users, wrong passwords and disabled accounts alike.
func (r *Repo) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := r.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, apperr.ErrNotFound) {
		return User{}, auth.ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return User{}, err
	}
	if !u.IsActive {
		return User{}, auth.ErrBadCredentials
	}
	return u, nil
}

func (r *Repo) List(ctx context.Context, f Filter) (paging.Page[User], error) {
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
		where = append(where, fmt.Sprintf("(username ILIKE %[1]s OR email ILIKE %[1]s OR first_name ILIKE %[1]s OR last_name ILIKE %[1]s)", n))
	}
	if f.Staff != nil {
		where = append(where, "is_staff = "+arg(*f.Staff))
	}
	if f.Active != nil {
		where = append(where, "is_active = "+arg(*f.Active))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM users`+cond, args...).Scan(&total); err != nil {
		return paging.Page[User]{}, err
	}
	rows, err := r.DB.Query(ctx, `SELECT `+userCols+` FROM users`+cond+
		` ORDER BY date_joined DESC, id DESC LIMIT `+arg(f.Page.Limit())+` OFFSET `+arg(f.Page.Offset()), args...)
	if err != nil {
		return paging.Page[User]{}, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return paging.Page[User]{}, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return paging.Page[User]{}, err
	}
	return paging.NewPage(out, f.Page, total), nil
}

func (r *Repo) Update(ctx context.Context, id int64, in Update) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	var u User
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		var err error
		u, err = scanUser(tx.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		in.Apply(&u)
		_, err = tx.Exec(ctx, `UPDATE users SET email=$2, first_name=$3, last_name=$4, phone=$5,
			profile_picture=$6, is_active=$7, is_staff=$8, is_superuser=$9 WHERE id=$1`,
			id, u.Email, u.FirstName, u.LastName, u.Phone, u.ProfilePicture, u.IsActive, u.IsStaff, u.IsSuperuser)
		return err
	})
	return u, err
}

// Delete removes the account and everything it owns, order snapshots included. Ratings of the
// products the user reviewed are recomputed in the same transaction.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	return postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM products
			WHERE id IN (SELECT product_id FROM product_reviews WHERE user_id=$1)
			ORDER BY id FOR UPDATE`, id)
		if err != nil {
			return err
		}
		productIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}
		// order_item_snapshots is only reachable through order_snapshots,
		// which the orders cascade removes.
		rows, err = tx.Query(ctx, `SELECT os.snapshot_id FROM order_snapshots os
			JOIN orders o ON o.id = os.order_id WHERE o.user_id=$1`, id)
		if err != nil {
			return err
		}
		snapIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return apperr.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_item_snapshots WHERE id = ANY($1)`, snapIDs); err != nil {
			return err
		}
		for _, pid := range productIDs {
			if err := reviews.RecomputeRating(ctx, tx, pid); err != nil {
				return err
			}
		}
		return nil
	})
}
