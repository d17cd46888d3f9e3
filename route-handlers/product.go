package routehandlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/coreybb/qcdash/models"
	"github.com/coreybb/qcdash/webutil"
)

var productIdentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ProductSource looks up products and their check suites on the QC server.
type ProductSource interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, ident string) (*models.ProductDetail, error)
}

type ProductHandler struct {
	Source ProductSource
}

func NewProductHandler(source ProductSource) *ProductHandler {
	return &ProductHandler{Source: source}
}

type productResponse struct {
	ProductIdent   string         `json:"product_ident"`
	Checks         []models.Check `json:"checks"`
	OptionalChecks []string       `json:"optional_checks"`
}

func (h *ProductHandler) HandleGetProducts(w http.ResponseWriter, r *http.Request) error {
	products, err := h.Source.ListProducts(r.Context())
	if err != nil {
		return fmt.Errorf("failed to retrieve products: %w", err)
	}
	if products == nil {
		products = []models.Product{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, products)
	return nil
}

func (h *ProductHandler) HandleGetProduct(w http.ResponseWriter, r *http.Request) error {
	ident := chi.URLParam(r, "ident")
	if !productIdentPattern.MatchString(ident) {
		return webutil.ErrBadRequest("Invalid product ident")
	}

	detail, err := h.Source.GetProduct(r.Context(), ident)
	if err != nil {
		return fmt.Errorf("failed to retrieve product %s: %w", ident, err)
	}

	resp := productResponse{
		ProductIdent:   ident,
		Checks:         detail.Checks(),
		OptionalChecks: detail.OptionalChecks(),
	}
	if resp.Checks == nil {
		resp.Checks = []models.Check{}
	}
	if resp.OptionalChecks == nil {
		resp.OptionalChecks = []string{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, resp)
	return nil
}
