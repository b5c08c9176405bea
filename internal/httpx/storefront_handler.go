package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/reviews"
)

// StorefrontHandler serves the public catalogue and customer reviews.
type StorefrontHandler struct {
	Catalog CatalogReader
	Reviews ReviewWriter
	Events  kafkax.Emitter
}

func (h *StorefrontHandler) Register(r chi.Router) {
	r.Get("/categories", h.categories)
	r.Get("/products", h.listProducts)
	r.Get("/products/{product}", h.productDetail)
	r.Get("/products/{product}/reviews", h.productReviews)

	r.Group(func(r chi.Router) {
		r.Use(RequireCapability(auth.CanCheckout))
		r.Post("/products/{product}/reviews", h.createReview)
		r.Put("/reviews/{id}", h.updateReview)
		r.Delete("/reviews/{id}", h.deleteReview)
	})
}

type categoryNode struct {
	catalog.Category
	Children []categoryNode `json:"children"`
}

func buildNodes(t *catalog.Tree, cs []catalog.Category) []categoryNode {
	out := make([]categoryNode, 0, len(cs))
	for _, c := range cs {
		out = append(out, categoryNode{Category: c, Children: buildNodes(t, t.Children(c.ID))})
	}
	return out
}

func (h *StorefrontHandler) categories(w http.ResponseWriter, r *http.Request) {
	t, err := h.Catalog.Tree(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buildNodes(t, t.Roots()))
}

// listProducts shows active products only. Filtering by category includes its subcategories.
func (h *StorefrontHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	f := catalog.ProductFilter{
		Query:              strings.TrimSpace(r.URL.Query().Get("q")),
		CategoryID:         queryInt(r, "category"),
		IncludeDescendants: true,
		ActiveOnly:         true,
		Sort:               catalog.Sort(r.URL.Query().Get("sort")),
		Page:               paging.FromQuery(r.URL.Query()),
	}
	if f.Sort == "" {
		f.Sort = catalog.SortRating
	}
	page, err := h.Catalog.ListProducts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type productDetail struct {
	catalog.Product
	EffectivePrice string                     `json:"effective_price"`
	Category       []catalog.Category         `json:"category_path"`
	Images         []catalog.ProductImage     `json:"images"`
	Reviews        paging.Page[reviews.Review] `json:"reviews"`
}

func (h *StorefrontHandler) activeBySlug(r *http.Request) (catalog.Product, error) {
	p, err := h.Catalog.GetProductBySlug(r.Context(), chi.URLParam(r, "product"))
	if err != nil {
		return catalog.Product{}, err
	}
	if !p.IsActive {
		return catalog.Product{}, apperr.ErrNotFound
	}
	return p, nil
}

func (h *StorefrontHandler) productDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.activeBySlug(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.Catalog.Tree(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	images, err := h.Catalog.ListImages(ctx, p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Reviews.ListForProduct(ctx, p.ID, paging.FromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if images == nil {
		images = []catalog.ProductImage{}
	}
	writeJSON(w, http.StatusOK, productDetail{
		Product:        p,
		EffectivePrice: p.EffectivePrice().StringFixed(2),
		Category:       t.Path(p.CategoryID),
		Images:         images,
		Reviews:        rv,
	})
}

func (h *StorefrontHandler) productReviews(w http.ResponseWriter, r *http.Request) {
	p, err := h.activeBySlug(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.Reviews.ListForProduct(r.Context(), p.ID, paging.FromQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *StorefrontHandler) createReview(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "product")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in reviews.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	who := auth.FromContext(r.Context())
	p, err := h.Catalog.GetProduct(r.Context(), productID)
	if err == nil && !p.IsActive {
		err = apperr.ErrNotFound
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Reviews.Create(r.Context(), who.UserID, productID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	emitReview(h.Events, r, rv, reviews.ActionCreated)
	writeJSON(w, http.StatusCreated, rv)
}

func (h *StorefrontHandler) updateReview(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in reviews.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Reviews.Update(r.Context(), id, auth.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	emitReview(h.Events, r, rv, reviews.ActionUpdated)
	writeJSON(w, http.StatusOK, rv)
}

func (h *StorefrontHandler) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Reviews.Delete(r.Context(), id, auth.FromContext(r.Context()))
	if err != nil {
		if errors.Is(err, apperr.ErrForbidden) {
			slog.Warn("review delete refused", "review_id", id, "user_id", auth.FromContext(r.Context()).UserID)
		}
		writeError(w, r, err)
		return
	}
	emitReview(h.Events, r, rv, reviews.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}

func emitReview(ev kafkax.Emitter, r *http.Request, rv reviews.Review, a reviews.Action) {
	ev.Emit(r.Context(), reviews.TopicReviewWritten, reviews.EventReviewWritten,
		reviews.PartitionKey(rv.ProductID), reviews.Written(rv, a))
}
