package inventory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/rbac"
)

// ImagePath is where product images are served from.
const ImagePath = "/uploads/products/"

// Handler wires HTTP endpoints for the product catalogue.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	rbac          rbac.Middleware
	maxImageBytes int64
}

// NewHandler constructs the product handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, maxImageBytes int64) *Handler {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &Handler{logger: logger, service: service, rbac: rbac, maxImageBytes: maxImageBytes}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireStaff())
		r.Get("/", h.list)
		r.Get("/categories", h.categories)
		r.Get("/category/{category}", h.listByCategory)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Patch("/{id}/stock", h.setStock)
		r.Delete("/{id}", h.delete)
	})
}

type productResponse struct {
	Product
	ExpiryDate *string `json:"tanggal_expired"`
	ImageURL   string  `json:"image_url,omitempty"`
}

func toResponse(r *http.Request, p Product) productResponse {
	out := productResponse{Product: p}
	if p.ExpiryDate != nil {
		d := p.ExpiryDate.Format(DateLayout)
		out.ExpiryDate = &d
	}
	if p.Image != "" {
		out.ImageURL = baseURL(r) + ImagePath + p.Image
	}
	return out
}

func toResponses(r *http.Request, ps []Product) []productResponse {
	out := make([]productResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toResponse(r, p))
	}
	return out
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(r, products))
}

func (h *Handler) categories(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, Categories)
}

func (h *Handler) listByCategory(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.fail(w, r, "list products by category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(r, products))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, p))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, image, cleanup, err := h.decodeProduct(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer cleanup()
	p, err := h.service.Create(r.Context(), in, image)
	if err != nil {
		h.fail(w, r, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(r, p))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, image, cleanup, err := h.decodeProduct(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defer cleanup()
	p, err := h.service.Update(r.Context(), id, in, image)
	if err != nil {
		h.fail(w, r, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, p))
}

type stockRequest struct {
	Stock *int `json:"stock" validate:"required,gte=0,max=2147483647"`
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req stockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.SetStock(r.Context(), id, *req.Stock)
	if err != nil {
		h.fail(w, r, "set product stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(r, p))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully"})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.String("request_id", requestID(r)), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.NewError(httpx.ErrValidation, "inventory: invalid product id")
	}
	return id, nil
}

// decodeProduct reads a multipart form (with optional "image" file) or a
// JSON body. cleanup releases multipart temp files.
func (h *Handler) decodeProduct(w http.ResponseWriter, r *http.Request) (ProductInput, io.Reader, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var in ProductInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			return ProductInput{}, nil, noop, err
		}
		return in, nil, noop, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ProductInput{}, nil, noop, ErrImageTooLarge
		}
		return ProductInput{}, nil, noop, fmt.Errorf("%w: malformed form: %v", httpx.ErrValidation, err)
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	in := ProductInput{
		Name:       r.FormValue("name"),
		Category:   r.FormValue("category"),
		Kind:       firstNonEmpty(r.FormValue("jenis_produk"), r.FormValue("kind")),
		ExpiryDate: firstNonEmpty(r.FormValue("tanggal_expired"), r.FormValue("expiry_date")),
	}
	fields := httpx.InvalidFields{}
	if v, err := parseFormInt(r.FormValue("price")); err != nil {
		fields["price"] = "number"
	} else {
		in.Price = v
	}
	if v, err := parseFormInt(r.FormValue("stock")); err != nil {
		fields["stock"] = "number"
	} else {
		in.Stock = int(v)
	}
	if len(fields) > 0 {
		cleanup()
		return ProductInput{}, nil, noop, fields
	}

	var image io.Reader
	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		image = file
		prev := cleanup
		cleanup = func() {
			_ = file.Close()
			prev()
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		cleanup()
		return ProductInput{}, nil, noop, fmt.Errorf("%w: image: %v", httpx.ErrValidation, err)
	}
	return in, image, cleanup, nil
}

func parseFormInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if i := strings.IndexByte(raw, '.'); i >= 0 && strings.Trim(raw[i+1:], "0") == "" {
		raw = raw[:i]
	}
	return strconv.ParseInt(raw, 10, 64)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
