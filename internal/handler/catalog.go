package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/service"
)

// CatalogHandler serves the product catalog
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: loggerOrDefault(logger)}
}

// List handles GET /api/products. Inactive products are included with ?all=true.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	products, err := h.catalog.ListProducts(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, h.logger, "catalog.list", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// Create handles POST /api/products
func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := decodeJSON(r, &p); err != nil {
		writeServiceError(w, h.logger, "catalog.create", err)
		return
	}
	_, userID, _ := caller(r)
	if err := h.catalog.CreateProduct(r.Context(), userID, &p); err != nil {
		writeServiceError(w, h.logger, "catalog.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, &p)
}

// Get handles GET /api/products/{code}; the path value may also be a product id
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.ResolveProduct(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, h.logger, "catalog.get", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Deactivate handles POST /api/products/{code}/deactivate
func (h *CatalogHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.ResolveProduct(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, h.logger, "catalog.deactivate", err)
		return
	}
	_, userID, _ := caller(r)
	p, err = h.catalog.DeactivateProduct(r.Context(), userID, p.ID)
	if err != nil {
		writeServiceError(w, h.logger, "catalog.deactivate", err)
		return
	}
	h.logger.Info("product deactivated", slog.String("product", p.Code), slog.String("user_id", userID))
	writeJSON(w, http.StatusOK, p)
}
