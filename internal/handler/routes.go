package handler

import (
	"net/http"

	"github.com/aryan0dhankhar/grccore/internal/security"
	"github.com/aryan0dhankhar/grccore/internal/security/audit"
	"github.com/aryan0dhankhar/grccore/internal/security/middleware"
)

// API groups the handlers mounted under /api and /ws
type API struct {
	Catalog       *CatalogHandler
	Subscriptions *SubscriptionHandler
	Quotas        *QuotaHandler
	Risks         *RiskHandler
	Tasks         *TaskHandler
	Events        *EventStreamHandler
	Health        *HealthHandler
}

// Register mounts every route on mux, each behind its permission check.
// Authentication is expected to run before the mux.
func (a *API) Register(mux *http.ServeMux, authz *security.AuthorizationService, auditLog *audit.Logger) {
	guard := func(perm security.Permission, h http.HandlerFunc) http.Handler {
		return middleware.RequirePermission(authz, auditLog, perm)(h)
	}

	if a.Health != nil {
		mux.HandleFunc("GET /healthz", a.Health.Health)
		mux.HandleFunc("GET /readyz", a.Health.Ready)
	}

	if a.Catalog != nil {
		mux.Handle("GET /api/products", guard(security.PermReadCatalog, a.Catalog.List))
		mux.Handle("POST /api/products", guard(security.PermManageCatalog, a.Catalog.Create))
		mux.Handle("GET /api/products/{code}", guard(security.PermReadCatalog, a.Catalog.Get))
		mux.Handle("POST /api/products/{code}/deactivate", guard(security.PermManageCatalog, a.Catalog.Deactivate))
	}

	if a.Subscriptions != nil {
		mux.Handle("POST /api/subscriptions", guard(security.PermManageSubscription, a.Subscriptions.Subscribe))
		mux.Handle("GET /api/subscriptions", guard(security.PermReadSubscription, a.Subscriptions.List))
		mux.Handle("GET /api/subscriptions/current", guard(security.PermReadSubscription, a.Subscriptions.Current))
		mux.Handle("POST /api/subscriptions/{id}/activate", guard(security.PermManageSubscription, a.Subscriptions.Activate))
		mux.Handle("POST /api/subscriptions/{id}/cancel", guard(security.PermManageSubscription, a.Subscriptions.Cancel))
		mux.Handle("POST /api/subscriptions/{id}/upgrade", guard(security.PermManageSubscription, a.Subscriptions.Upgrade))
		mux.Handle("POST /api/subscriptions/{id}/past-due", guard(security.PermManageSubscription, a.Subscriptions.PastDue))
		mux.Handle("POST /api/subscriptions/{id}/renew", guard(security.PermManageSubscription, a.Subscriptions.Renew))
	}

	if a.Quotas != nil {
		mux.Handle("GET /api/quotas", guard(security.PermReadQuota, a.Quotas.List))
		mux.Handle("GET /api/quotas/{type}", guard(security.PermReadQuota, a.Quotas.Get))
		mux.Handle("POST /api/quotas/{type}/check", guard(security.PermReadQuota, a.Quotas.Check))
		mux.Handle("POST /api/quotas/{type}/increment", guard(security.PermConsumeQuota, a.Quotas.Increment))
		mux.Handle("POST /api/quotas/{type}/decrement", guard(security.PermConsumeQuota, a.Quotas.Decrement))
		mux.Handle("POST /api/quotas/{type}/reset", guard(security.PermManageQuota, a.Quotas.Reset))
	}

	if a.Risks != nil {
		mux.Handle("POST /api/risks", guard(security.PermWriteRisk, a.Risks.Create))
		mux.Handle("GET /api/risks", guard(security.PermReadRisk, a.Risks.List))
		mux.Handle("GET /api/risks/summary", guard(security.PermReadRisk, a.Risks.Summary))
		mux.Handle("GET /api/risks/{id}", guard(security.PermReadRisk, a.Risks.Get))
		mux.Handle("POST /api/risks/{id}/assess", guard(security.PermWriteRisk, a.Risks.Assess))
		mux.Handle("POST /api/risks/{id}/treat", guard(security.PermWriteRisk, a.Risks.Treat))
		mux.Handle("POST /api/risks/{id}/accept", guard(security.PermWriteRisk, a.Risks.Accept))
		mux.Handle("POST /api/risks/{id}/close", guard(security.PermWriteRisk, a.Risks.Close))
	}

	if a.Tasks != nil {
		mux.Handle("POST /api/tasks", guard(security.PermWriteTask, a.Tasks.Create))
		mux.Handle("GET /api/tasks", guard(security.PermReadTask, a.Tasks.List))
		mux.Handle("GET /api/tasks/{id}", guard(security.PermReadTask, a.Tasks.Get))
		mux.Handle("POST /api/tasks/{id}/start", guard(security.PermWriteTask, a.Tasks.Start))
		mux.Handle("POST /api/tasks/{id}/complete", guard(security.PermApproveTask, a.Tasks.Complete))
		mux.Handle("POST /api/tasks/{id}/reject", guard(security.PermApproveTask, a.Tasks.Reject))
		mux.Handle("POST /api/tasks/{id}/cancel", guard(security.PermWriteTask, a.Tasks.Cancel))
		mux.Handle("POST /api/tasks/{id}/reassign", guard(security.PermWriteTask, a.Tasks.Reassign))
	}

	if a.Events != nil {
		mux.Handle("GET /ws/events", guard(security.PermStreamEvents, a.Events.ServeHTTP))
	}
}
