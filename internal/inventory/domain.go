package inventory

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/kasirku/kasir/internal/platform/httpx"
)

// Category groups products on the menu.
type Category string

const (
	CategoryFood  Category = "food"
	CategoryDrink Category = "drink"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryFood, CategoryDrink}

// Kind distinguishes packaged goods, which carry an expiry date, from
// items prepared on site.
type Kind string

const (
	KindPackaged    Kind = "packaged"
	KindNonPackaged Kind = "non-packaged"
)

// Stored spellings of Kind in products.jenis_produk.
const (
	dbKindPackaged    = "kemasan"
	dbKindNonPackaged = "non-kemasan"
)

// DateLayout is the wire and storage layout of calendar dates.
const DateLayout = "2006-01-02"

var (
	ErrProductNotFound = httpx.NewError(httpx.ErrNotFound, "inventory: product not found")
	ErrInvalidCategory = httpx.NewError(httpx.ErrValidation, "inventory: category must be food or drink")
	ErrInvalidKind     = httpx.NewError(httpx.ErrValidation, "inventory: jenis_produk must be kemasan or non-kemasan")
	ErrExpiryRequired  = httpx.NewError(httpx.ErrValidation, "inventory: packaged products need tanggal_expired")
	ErrInvalidExpiry   = httpx.NewError(httpx.ErrValidation, "inventory: tanggal_expired must be YYYY-MM-DD")
	ErrNegativeStock   = httpx.NewError(httpx.ErrValidation, "inventory: stock cannot be negative")
	ErrStockTooLarge   = httpx.NewError(httpx.ErrValidation, "inventory: stock is too large")
	ErrImageTooLarge   = httpx.NewError(httpx.ErrValidation, "inventory: image exceeds size limit")
	ErrImageType       = httpx.NewError(httpx.ErrValidation, "inventory: only JPG/JPEG images are allowed")
)

// Product is a sellable catalogue entry.
type Product struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Price      int64      `json:"price"`
	Category   Category   `json:"category"`
	Stock      int        `json:"stock"`
	Kind       Kind       `json:"jenis_produk"`
	ExpiryDate *time.Time `json:"-"`
	Image      string     `json:"image,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Expired reports whether a packaged product is past its expiry on today.
// today must be a UTC-midnight calendar date, see Today.
func (p Product) Expired(today time.Time) bool {
	return isExpired(p.Kind, p.ExpiryDate, today)
}

func isExpired(kind Kind, expiry *time.Time, today time.Time) bool {
	return kind == KindPackaged && expiry != nil && !expiry.After(today)
}

// Today returns the calendar date of now in loc as UTC midnight, the same
// representation pgx decodes DATE columns into.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseCategory accepts canonical names and the Indonesian synonyms, case-insensitively.
func ParseCategory(raw string) (Category, error) {
	switch cases.Fold().String(strings.TrimSpace(raw)) {
	case "food", "makanan":
		return CategoryFood, nil
	case "drink", "minuman":
		return CategoryDrink, nil
	}
	return "", ErrInvalidCategory
}

// ParseKind accepts canonical and stored spellings. Empty means non-packaged.
func ParseKind(raw string) (Kind, error) {
	switch cases.Fold().String(strings.TrimSpace(raw)) {
	case "", "non-packaged", dbKindNonPackaged, "non_kemasan":
		return KindNonPackaged, nil
	case "packaged", dbKindPackaged:
		return KindPackaged, nil
	}
	return "", ErrInvalidKind
}

func (k Kind) dbValue() string {
	if k == KindPackaged {
		return dbKindPackaged
	}
	return dbKindNonPackaged
}

// ParseDate parses a YYYY-MM-DD calendar date. Empty yields nil.
func ParseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if len(raw) > len(DateLayout) {
		// tolerate full timestamps from date pickers
		raw = raw[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExpiry, raw)
	}
	return &t, nil
}

// ProductInput carries the editable fields of a product.
type ProductInput struct {
	Name       string `json:"name" validate:"required,max=120"`
	Price      int64  `json:"price" validate:"gte=0"`
	Category   string `json:"category" validate:"required"`
	Stock      int    `json:"stock" validate:"gte=0,max=2147483647"`
	Kind       string `json:"jenis_produk"`
	ExpiryDate string `json:"tanggal_expired"`
}

// normalize resolves enums and applies the expiry rule against today.
func (in ProductInput) normalize(today time.Time) (Product, error) {
	if err := httpx.Validate(in); err != nil {
		return Product{}, err
	}
	category, err := ParseCategory(in.Category)
	if err != nil {
		return Product{}, err
	}
	kind, err := ParseKind(in.Kind)
	if err != nil {
		return Product{}, err
	}
	expiry, err := ParseDate(in.ExpiryDate)
	if err != nil {
		return Product{}, err
	}
	if kind == KindPackaged && expiry == nil {
		return Product{}, ErrExpiryRequired
	}
	if kind == KindNonPackaged {
		expiry = nil
	}
	p := Product{
		Name:       strings.TrimSpace(in.Name),
		Price:      in.Price,
		Category:   category,
		Stock:      in.Stock,
		Kind:       kind,
		ExpiryDate: expiry,
	}
	if p.Expired(today) {
		p.Stock = 0
	}
	return p, nil
}
