package httpx

import (
	"context"
	"io"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/reviews"
	"github.com/ariefcatur/go-storefront/internal/session"
	"github.com/ariefcatur/go-storefront/internal/users"
)

// The interfaces below are the slices of the repositories each handler uses.

type CatalogReader interface {
	Tree(ctx context.Context) (*catalog.Tree, error)
	ListProducts(ctx context.Context, f catalog.ProductFilter) (paging.Page[catalog.Product], error)
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error)
	ProductsByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error)
	ListImages(ctx context.Context, productID int64) ([]catalog.ProductImage, error)
}

type CatalogStore interface {
	CatalogReader
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	GetCategory(ctx context.Context, id int64) (catalog.Category, error)
	CreateCategory(ctx context.Context, in catalog.CategoryInput) (catalog.Category, error)
	UpdateCategory(ctx context.Context, id int64, in catalog.CategoryInput) (catalog.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	AllProducts(ctx context.Context) ([]catalog.Product, error)
	CreateProduct(ctx context.Context, in catalog.ProductInput) (catalog.Product, error)
	UpdateProduct(ctx context.Context, id int64, in catalog.ProductInput) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	AddImage(ctx context.Context, productID int64, url string) (catalog.ProductImage, error)
	DeleteImage(ctx context.Context, productID, imageID int64) (catalog.ProductImage, error)
}

type ReviewWriter interface {
	Create(ctx context.Context, userID, productID int64, in reviews.Input) (reviews.Review, error)
	Update(ctx context.Context, id int64, actor *auth.Identity, in reviews.Input) (reviews.Review, error)
	Delete(ctx context.Context, id int64, actor *auth.Identity) (reviews.Review, error)
	ListForProduct(ctx context.Context, productID int64, p paging.Params) (paging.Page[reviews.Review], error)
}

type ReviewStore interface {
	ReviewWriter
	Get(ctx context.Context, id int64) (reviews.Review, error)
	List(ctx context.Context, f reviews.Filter) (paging.Page[reviews.Review], error)
}

type OrderReader interface {
	ListForUser(ctx context.Context, userID int64) ([]orders.Order, error)
	GetForUser(ctx context.Context, userID, orderID int64) (orders.Order, error)
}

type OrderStore interface {
	Get(ctx context.Context, orderID int64) (orders.Order, error)
	List(ctx context.Context, f orders.Filter) (paging.Page[orders.Order], error)
	Delete(ctx context.Context, orderID int64) error
	Stats(ctx context.Context) (orders.Stats, error)
}

type UserStore interface {
	UserLoader
	List(ctx context.Context, f users.Filter) (paging.Page[users.User], error)
	Update(ctx context.Context, id int64, in users.Update) (users.User, error)
	Delete(ctx context.Context, id int64) error
}

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (users.User, error)
}

type Checkout interface {
	SubmitAddress(ctx context.Context, s *session.Session, a session.Address) error
	Preview(ctx context.Context, s *session.Session) (orders.Preview, error)
	Confirm(ctx context.Context, s *session.Session, who *auth.Identity) (orders.Order, error)
}

type StatusChanger interface {
	ChangeStatus(ctx context.Context, orderID int64, raw string) (orders.Order, error)
}

type ImageStore interface {
	SaveImage(filename string, r io.Reader) (string, error)
	Remove(url string) error
}

type SessionManager interface {
	Save(ctx context.Context, s *session.Session) error
	Rotate(ctx context.Context, w http.ResponseWriter, s *session.Session) error
	Destroy(ctx context.Context, w http.ResponseWriter, s *session.Session) error
}
