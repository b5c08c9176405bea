package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/postgres"
)

type Sort string

const (
	SortRating    Sort = "rating"
	SortNewest    Sort = "newest"
	SortPriceAsc  Sort = "price"
	SortPriceDesc Sort = "-price"
	SortName      Sort = "name"
)

var orderBy = map[Sort]string{
	SortRating:    "p.average_rating DESC, p.review_count DESC, p.created_at DESC",
	SortNewest:    "p.created_at DESC",
	SortPriceAsc:  "LEAST(p.discount_price, p.price) ASC, p.id",
	SortPriceDesc: "LEAST(p.discount_price, p.price) DESC, p.id",
	SortName:      "p.name ASC, p.id",
}

type ProductFilter struct {
	Query              string
	CategoryID         int64
	IncludeDescendants bool
	ActiveOnly         bool
	Sort               Sort
	Page               paging.Params
}

type Repo struct{ DB *pgxpool.Pool }

const productCols = `p.id, p.name, p.slug, p.description, p.image_url, p.category_id, p.price,
	p.discount_price, p.stock, p.is_active, p.attributes, p.average_rating, p.review_count, p.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (Product, error) {
	var (
		p        Product
		discount decimal.NullDecimal
		attrs    []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.ImageURL, &p.CategoryID, &p.Price,
		&discount, &p.Stock, &p.IsActive, &attrs, &p.AverageRating, &p.ReviewCount, &p.CreatedAt)
	if err != nil {
		return Product{}, err
	}
	if discount.Valid {
		d := discount.Decimal
		p.DiscountPrice = &d
	}
	if p.Attributes, err = ParseAttributes(string(attrs)); err != nil {
		return Product{}, fmt.Errorf("product %d attributes: %w", p.ID, err)
	}
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- categories ----

func (r *Repo) ListCategories(ctx context.Context) ([]Category, error) {
	return listCategories(ctx, r.DB, "")
}

func listCategories(ctx context.Context, q postgres.Querier, suffix string) ([]Category, error) {
	rows, err := q.Query(ctx, `SELECT id, name, parent_id FROM categories ORDER BY name`+suffix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) Tree(ctx context.Context) (*Tree, error) {
	cats, err := r.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return NewTree(cats), nil
}

func (r *Repo) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.DB.QueryRow(ctx, `SELECT id, name, parent_id FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.ParentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, apperr.ErrNotFound
	}
	return c, err
}

func (r *Repo) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	return r.saveCategory(ctx, 0, in)
}

func (r *Repo) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (Category, error) {
	return r.saveCategory(ctx, id, in)
}

// saveCategory locks the whole category table so two concurrent re-parentings
// cannot build a cycle between them.
func (r *Repo) saveCategory(ctx context.Context, id int64, in CategoryInput) (Category, error) {
	if err := in.Validate(); err != nil {
		return Category{}, err
	}
	c := Category{ID: id, Name: strings.TrimSpace(in.Name), ParentID: in.ParentID}
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		cats, err := listCategories(ctx, tx, " FOR UPDATE")
		if err != nil {
			return err
		}
		tree := NewTree(cats)
		if id != 0 {
			if _, ok := tree.Get(id); !ok {
				return apperr.ErrNotFound
			}
		}
		if err := tree.ValidateParent(id, in.ParentID); err != nil {
			return err
		}
		if id == 0 {
			return tx.QueryRow(ctx, `INSERT INTO categories (name, parent_id) VALUES ($1, $2) RETURNING id`,
				c.Name, c.ParentID).Scan(&c.ID)
		}
		_, err = tx.Exec(ctx, `UPDATE categories SET name=$2, parent_id=$3 WHERE id=$1`, id, c.Name, c.ParentID)
		return err
	})
	if postgres.IsUniqueViolation(err) {
		return Category{}, fmt.Errorf("category %q: %w", c.Name, apperr.ErrConflict)
	}
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

// DeleteCategory removes the category; subcategories, their products, images and reviews go with it.
func (r *Repo) DeleteCategory(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ---- products ----

func (r *Repo) ListProducts(ctx context.Context, f ProductFilter) (paging.Page[Product], error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ActiveOnly {
		where = append(where, "p.is_active")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		n := arg("%" + q + "%")
		where = append(where, fmt.Sprintf("(p.name ILIKE %[1]s OR p.description ILIKE %[1]s OR p.attributes::text ILIKE %[1]s)", n))
	}
	if f.CategoryID != 0 {
		if f.IncludeDescendants {
			tree, err := r.Tree(ctx)
			if err != nil {
				return paging.Page[Product]{}, err
			}
			where = append(where, "p.category_id = ANY("+arg(tree.Subtree(f.CategoryID))+")")
		} else {
			where = append(where, "p.category_id = "+arg(f.CategoryID))
		}
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products p`+cond, args...).Scan(&total); err != nil {
		return paging.Page[Product]{}, err
	}

	order, ok := orderBy[f.Sort]
	if !ok {
		order = orderBy[SortRating]
	}
	sql := `SELECT ` + productCols + ` FROM products p` + cond +
		` ORDER BY ` + order + ` LIMIT ` + arg(f.Page.Limit()) + ` OFFSET ` + arg(f.Page.Offset())
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return paging.Page[Product]{}, err
	}
	items, err := collectProducts(rows)
	if err != nil {
		return paging.Page[Product]{}, err
	}
	return paging.NewPage(items, f.Page, total), nil
}

// AllProducts returns every product ordered by id, for exports.
func (r *Repo) AllProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products p ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	return r.getProduct(ctx, `p.id = $1`, id)
}

func (r *Repo) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	return r.getProduct(ctx, `p.slug = $1`, slug)
}

func (r *Repo) getProduct(ctx context.Context, cond string, arg any) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products p WHERE `+cond, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.ErrNotFound
	}
	return p, err
}

// ProductsByIDs returns the products that still exist among ids; missing ids are skipped.
func (r *Repo) ProductsByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products p WHERE p.id = ANY($1) ORDER BY p.id`, ids)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *Repo) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	attrs, err := in.Validate()
	if err != nil {
		return Product{}, err
	}
	slug := DeriveSlug(in.Slug, in.Name)
	row := r.DB.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO products (name, slug, description, image_url, category_id, price, discount_price,
			                      stock, is_active, attributes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING *
		)
		SELECT `+productCols+` FROM ins p`,
		strings.TrimSpace(in.Name), slug, in.Description, in.ImageURL, in.CategoryID, in.Price,
		nullDecimal(in.DiscountPrice), in.Stock, in.IsActive, attrs.String())
	p, err := scanProduct(row)
	return p, translateWriteErr(err, slug)
}

func (r *Repo) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	attrs, err := in.Validate()
	if err != nil {
		return Product{}, err
	}
	slug := DeriveSlug(in.Slug, in.Name)
	row := r.DB.QueryRow(ctx, `
		WITH upd AS (
			UPDATE products SET name=$2, slug=$3, description=$4, image_url=$5, category_id=$6, price=$7,
			       discount_price=$8, stock=$9, is_active=$10, attributes=$11
			WHERE id=$1
			RETURNING *
		)
		SELECT `+productCols+` FROM upd p`,
		id, strings.TrimSpace(in.Name), slug, in.Description, in.ImageURL, in.CategoryID, in.Price,
		nullDecimal(in.DiscountPrice), in.Stock, in.IsActive, attrs.String())
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.ErrNotFound
	}
	return p, translateWriteErr(err, slug)
}

func (r *Repo) DeleteProduct(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func translateWriteErr(err error, slug string) error {
	switch {
	case err == nil:
		return nil
	case postgres.IsUniqueViolation(err):
		return fmt.Errorf("slug %q: %w", slug, apperr.ErrConflict)
	case postgres.IsForeignKeyViolation(err):
		return apperr.Invalid("category_id", "Select a valid category.")
	}
	return err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// ---- gallery ----

func (r *Repo) ListImages(ctx context.Context, productID int64) ([]ProductImage, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, product_id, image_url, created_at FROM product_images
		WHERE product_id=$1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ProductImage{}
	for rows.Next() {
		var im ProductImage
		if err := rows.Scan(&im.ID, &im.ProductID, &im.ImageURL, &im.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

func (r *Repo) AddImage(ctx context.Context, productID int64, url string) (ProductImage, error) {
	im := ProductImage{ProductID: productID, ImageURL: url}
	err := r.DB.QueryRow(ctx, `INSERT INTO product_images (product_id, image_url) VALUES ($1, $2)
		RETURNING id, created_at`, productID, url).Scan(&im.ID, &im.CreatedAt)
	if postgres.IsForeignKeyViolation(err) {
		return ProductImage{}, apperr.ErrNotFound
	}
	return im, err
}

// DeleteImage removes one gallery image; the product's primary image is untouched.
func (r *Repo) DeleteImage(ctx context.Context, productID, imageID int64) (ProductImage, error) {
	var im ProductImage
	err := r.DB.QueryRow(ctx, `DELETE FROM product_images WHERE id=$1 AND product_id=$2
		RETURNING id, product_id, image_url, created_at`, imageID, productID).
		Scan(&im.ID, &im.ProductID, &im.ImageURL, &im.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductImage{}, apperr.ErrNotFound
	}
	return im, err
}
