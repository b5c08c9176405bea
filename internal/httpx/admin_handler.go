package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/auth"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/paging"
	"github.com/ariefcatur/go-storefront/internal/reviews"
	"github.com/ariefcatur/go-storefront/internal/users"
)

const maxUpload = 10 << 20

// AdminHandler is the staff dashboard. Routes are mounted under /admin behind
// the admin capability check.
type AdminHandler struct {
	Catalog CatalogStore
	Orders  OrderStore
	Status  StatusChanger
	Cache   *orders.StatusCache
	Users   UserStore
	Reviews ReviewStore
	Media   ImageStore
	Events  kafkax.Emitter
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/stats", h.stats)

	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Get("/categories/{id}", h.getCategory)
	r.Put("/categories/{id}", h.updateCategory)
	r.Delete("/categories/{id}", h.deleteCategory)

	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/export.xlsx", h.exportProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)
	r.Post("/products/{id}/images", h.addImage)
	r.Delete("/products/{id}/images/{imageID}", h.deleteImage)
	r.Post("/uploads", h.upload)

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.changeStatus)
	r.Delete("/orders/{id}", h.deleteOrder)

	r.Get("/users", h.listUsers)
	r.Get("/users/{id}", h.getUser)
	r.Patch("/users/{id}", h.updateUser)
	r.Delete("/users/{id}", h.deleteUser)

	r.Get("/reviews", h.listReviews)
	r.Delete("/reviews/{id}", h.deleteReview)
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Orders.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Categories

func (h *AdminHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cs == nil {
		cs = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *AdminHandler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Catalog.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	var in catalog.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Catalog.CreateCategory(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AdminHandler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in catalog.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Catalog.UpdateCategory(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Catalog.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Products

func (h *AdminHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	f := catalog.ProductFilter{
		Query:      strings.TrimSpace(r.URL.Query().Get("q")),
		CategoryID: queryInt(r, "category"),
		Sort:       catalog.Sort(r.URL.Query().Get("sort")),
		Page:       paging.FromQuery(r.URL.Query()),
	}
	if active := queryBool(r, "active"); active != nil && *active {
		f.ActiveOnly = true
	}
	if f.Sort == "" {
		f.Sort = catalog.SortNewest
	}
	page, err := h.Catalog.ListProducts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type adminProduct struct {
	catalog.Product
	Images []catalog.ProductImage `json:"images"`
}

func (h *AdminHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	images, err := h.Catalog.ListImages(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if images == nil {
		images = []catalog.ProductImage{}
	}
	writeJSON(w, http.StatusOK, adminProduct{Product: p, Images: images})
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.CreateProduct(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in catalog.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.UpdateProduct(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Catalog.DeleteProduct(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exportProducts streams every product as a spreadsheet. It is buffered so a
// failure can still be reported as an error response.
func (h *AdminHandler) exportProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.AllProducts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.Catalog.Tree(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := catalog.ExportProducts(&buf, ps, t); err != nil {
		writeError(w, r, err)
		return
	}
	name := "products-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// saveUpload stores the multipart "image" field and returns its public URL.
func (h *AdminHandler) saveUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return "", apperr.Invalid("image", "Upload a valid image.")
	}
	f, hdr, err := r.FormFile("image")
	if err != nil {
		return "", apperr.Invalid("image", "This field is required.")
	}
	defer f.Close()
	return h.Media.SaveImage(hdr.Filename, f)
}

func (h *AdminHandler) upload(w http.ResponseWriter, r *http.Request) {
	url, err := h.saveUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (h *AdminHandler) addImage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Catalog.GetProduct(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	url, err := h.saveUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	img, err := h.Catalog.AddImage(r.Context(), id, url)
	if err != nil {
		_ = h.Media.Remove(url)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

func (h *AdminHandler) deleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	imageID, err := idParam(r, "imageID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	img, err := h.Catalog.DeleteImage(r.Context(), id, imageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Media.Remove(img.ImageURL); err != nil {
		slog.Warn("remove image file", "image_id", img.ID, "url", img.ImageURL, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Orders

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := orders.Filter{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
		Page:  paging.FromQuery(r.URL.Query()),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := orders.ParseStatus(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Status = st
	}
	page, err := h.Orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *AdminHandler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Status.ChangeStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Orders.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Cache.Invalidate(r.Context(), id); err != nil {
		slog.Warn("invalidate order status", "order_id", id, "error", err)
	}
	slog.Info("order deleted", "order_id", id, "by", auth.FromContext(r.Context()).UserID)
	w.WriteHeader(http.StatusNoContent)
}

// Users

func (h *AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.Users.List(r.Context(), users.Filter{
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Staff:  queryBool(r, "staff"),
		Active: queryBool(r, "active"),
		Page:   paging.FromQuery(r.URL.Query()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *AdminHandler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Users.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AdminHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in users.Update
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Users.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// deleteUser refuses to remove the caller's own account.
func (h *AdminHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if id == auth.FromContext(r.Context()).UserID {
		writeError(w, r, apperr.ErrForbidden)
		return
	}
	if err := h.Users.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reviews

func (h *AdminHandler) listReviews(w http.ResponseWriter, r *http.Request) {
	f := reviews.Filter{
		ProductID: queryInt(r, "product"),
		UserID:    queryInt(r, "user"),
		Stars:     int(queryInt(r, "stars")),
		Page:      paging.FromQuery(r.URL.Query()),
	}
	page, err := h.Reviews.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *AdminHandler) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Reviews.Delete(r.Context(), id, auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	emitReview(h.Events, r, rv, reviews.ActionDeleted)
	w.WriteHeader(http.StatusNoContent)
}
